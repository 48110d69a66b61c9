package runner

import (
	"time"

	"github.com/google/uuid"

	"passviz/internal/observ"
)

// Status captures the progress state of one input file.
type Status string

const (
	// StatusQueued indicates the file is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusLoading indicates the IR is being read.
	StatusLoading Status = "loading"
	// StatusRunning indicates a pass is executing; Event.Pass names it.
	StatusRunning Status = "running"
	// StatusDone indicates the session finished and its report was written.
	StatusDone Status = "done"
	// StatusError indicates loading or the pipeline failed.
	StatusError Status = "error"
)

// Event reports progress for a file.
type Event struct {
	File    string
	Pass    string
	Index   int // 1-based execution count; anchored passes may push it past Total
	Total   int
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Implementations must be safe for
// concurrent use: sessions run in parallel.
type ProgressSink interface {
	OnEvent(Event)
}

// FileResult is the outcome of one session.
type FileResult struct {
	File    string
	Session uuid.UUID
	Entries int
	// Err is a load or pipeline failure. The report is still written.
	Err error
	// SinkErr is a failure to deliver the report. It does not fail the file.
	SinkErr error
	Timing  *observ.Report
	Elapsed time.Duration
}

// Result collects the outcome of every session in input order.
type Result struct {
	Files []FileResult
}

// Failed reports whether any session had a load or pipeline failure.
func (r Result) Failed() bool {
	for _, f := range r.Files {
		if f.Err != nil {
			return true
		}
	}
	return false
}
