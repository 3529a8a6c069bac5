package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/townsquare/mediastore/interfaces"
)

// Failure describes one file the batch could not migrate.
type Failure struct {
	FileID string `json:"file_id"`
	Error  string `json:"error"`
}

// Report summarizes one migration batch or queue drain.
type Report struct {
	Scanned         int           `json:"scanned"`
	Claimed         int           `json:"claimed"`
	Copied          int           `json:"copied"`
	BytesCopied     int64         `json:"bytes_copied"`
	AlreadyPresent  int           `json:"already_present"`
	SkippedMigrated int           `json:"skipped_migrated"`
	Conflicts       int           `json:"conflicts"`
	Failed          int           `json:"failed"`
	Duration        time.Duration `json:"duration"`

	// Failures lists this batch's errors; Exhausted lists files whose
	// attempt budget was already spent before the batch and which need
	// manual intervention.
	Failures  []Failure                `json:"failures,omitempty"`
	Exhausted []interfaces.LedgerEntry `json:"exhausted,omitempty"`
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{}
}

func (r *Report) addFailure(fileID string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{FileID: fileID, Error: err.Error()})
}

func (r *Report) addExhausted(entry interfaces.LedgerEntry) {
	r.Exhausted = append(r.Exhausted, entry)
}

// String renders an operator-readable summary.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scanned=%d claimed=%d copied=%d (%d bytes) already-present=%d skipped=%d conflicts=%d failed=%d in %s",
		r.Scanned, r.Claimed, r.Copied, r.BytesCopied, r.AlreadyPresent,
		r.SkippedMigrated, r.Conflicts, r.Failed, r.Duration.Round(time.Millisecond))
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "\n  failed %s: %s", f.FileID, f.Error)
	}
	for _, e := range r.Exhausted {
		fmt.Fprintf(&b, "\n  needs attention %s: %d attempts, last error: %s", e.FileID, e.Attempts, e.LastError)
	}
	return b.String()
}
