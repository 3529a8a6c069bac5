package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/townsquare/mediastore/ingest"
	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/metrics"
	"github.com/townsquare/mediastore/resolve"
)

const (
	// maxUploadSize bounds multipart upload payloads (32 MiB).
	maxUploadSize = 32 << 20
)

// UploadResponse is returned after a confirmed ingestion.
type UploadResponse struct {
	CanonicalURL string `json:"canonicalUrl"`
	ProxyPath    string `json:"proxyPath"`
	FileID       string `json:"fileId"`
}

// ResolveResponse describes a redirect-mode resolution.
type ResolveResponse struct {
	FileID       string `json:"fileId"`
	Backend      string `json:"backend"`
	CanonicalURL string `json:"canonicalUrl"`
}

// Handler processes media upload and resolution requests.
type Handler struct {
	ingest   *ingest.Service
	resolver *resolve.Resolver
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewHandler creates a handler over the ingestion service and resolver.
func NewHandler(ingestSvc *ingest.Service, resolver *resolve.Resolver, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		ingest:   ingestSvc,
		resolver: resolver,
		metrics:  m,
		log:      log,
	}
}

// HandleUpload accepts a multipart form with a "file" part and an optional
// "category" field and returns the canonical URL after the authoritative
// write is confirmed.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.metrics.UploadFailures.Inc()
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.metrics.UploadFailures.Inc()
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("missing file part: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.metrics.UploadFailures.Inc()
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	result, err := h.ingest.Ingest(r.Context(), data,
		header.Filename,
		r.FormValue("category"),
		header.Header.Get("Content-Type"))
	if err != nil {
		h.metrics.UploadFailures.Inc()
		h.log.Error("Upload failed", slog.String("filename", header.Filename), "err", err)
		h.writeError(w, http.StatusBadGateway, fmt.Errorf("upload failed: %w", err))
		return
	}

	h.metrics.UploadsTotal.Inc()
	h.writeJSON(w, http.StatusCreated, UploadResponse{
		CanonicalURL: result.CanonicalURL,
		ProxyPath:    result.ProxyPath,
		FileID:       result.Key.FileID(),
	})
}

// HandleProxy serves /storage-proxy/{bucket}/{path} references: a 302 to
// the canonical object store URL when the object lives there, a direct
// stream when only a legacy backend has it, and a 404 the caller may map
// to a placeholder when nothing does.
func (h *Handler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	reference := "/storage-proxy/" + chi.URLParam(r, "bucket") + "/" + chi.URLParam(r, "*")
	h.serveResolved(w, r, reference, resolve.ModeRedirect)
}

// HandleResolve serves /api/media/resolve?ref={any-dialect}&mode=stream.
// The default mode is redirect.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("ref")
	if reference == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("missing ref parameter"))
		return
	}

	mode := resolve.ModeRedirect
	if r.URL.Query().Get("mode") == "stream" {
		mode = resolve.ModeStream
	}
	h.serveResolved(w, r, reference, mode)
}

func (h *Handler) serveResolved(w http.ResponseWriter, r *http.Request, reference string, mode resolve.Mode) {
	resolved, err := h.resolver.Resolve(r.Context(), reference, mode)
	if errors.Is(err, interfaces.ErrNotFound) {
		h.metrics.ResolvesTotal.WithLabelValues("none", "miss").Inc()
		h.writeError(w, http.StatusNotFound, fmt.Errorf("media not found: %s", reference))
		return
	}
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}

	if resolved.IsRedirect() {
		h.metrics.ResolvesTotal.WithLabelValues(resolved.Backend, "redirect").Inc()
		http.Redirect(w, r, resolved.RedirectURL, http.StatusFound)
		return
	}

	h.metrics.ResolvesTotal.WithLabelValues(resolved.Backend, "stream").Inc()
	w.Header().Set("Content-Type", resolved.Object.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(resolved.Object.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(resolved.Object.Data)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
