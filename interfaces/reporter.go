package interfaces

import "time"

// ErrorReporter forwards unexpected failures to the error tracker.
// Implementations must be safe for concurrent use and must never block
// the ingestion path.
type ErrorReporter interface {
	CaptureError(err error)
	Flush(timeout time.Duration)
}
