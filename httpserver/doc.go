// Package httpserver provides the media API HTTP server.
//
// The server exposes three request surfaces:
//
//   - POST /api/media accepts multipart uploads and returns the canonical
//     URL once the authoritative object store write is confirmed.
//   - GET /api/media/resolve?ref={reference}&mode={redirect|stream}
//     resolves any historical media reference spelling.
//   - GET /storage-proxy/{BUCKET}/{path} serves the compatibility proxy
//     spelling embedded in old page content.
//
// Health endpoints (/livez, /readyz) and drain control (/drain,
// /undrain) follow the standard deployment lifecycle: drain flips
// readiness off so load balancers rotate the instance out before
// shutdown. Prometheus metrics are served on a separate listener.
package httpserver
