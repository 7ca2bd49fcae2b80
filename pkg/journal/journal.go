package journal

import "time"

// Kind classifies a journal entry.
type Kind string

const (
	KindWorkerStart  Kind = "worker-start"
	KindWorkerExit   Kind = "worker-exit"
	KindRestartDelay Kind = "restart-delay"
	KindDispatch     Kind = "dispatch"
)

// Entry is one activity record.
type Entry struct {
	ID     int64
	Time   time.Time
	Kind   Kind
	Rule   string
	Detail string
}

// Recorder persists daemon activity. The supervisor and the worker are
// separate processes appending to the same store, so implementations
// must tolerate concurrent appenders. Failures are reported to the
// caller, who logs and moves on; the journal never blocks dispatching.
type Recorder interface {
	Append(Entry) error
	Recent(n int) ([]Entry, error)
	Close() error
}
