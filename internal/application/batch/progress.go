package batch

import "github.com/apex/log"

// Progress is an incremental snapshot of a running batch. Observability
// only; never a control input.
type Progress struct {
	RunID     string
	Total     int
	Processed int
	Failed    int
	Remaining int
}

// ProgressSink receives progress snapshots as records complete.
type ProgressSink interface {
	Report(p Progress)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(Progress)

func (f ProgressFunc) Report(p Progress) { f(p) }

// LogSink reports progress as structured log lines.
type LogSink struct{}

func (LogSink) Report(p Progress) {
	log.WithFields(log.Fields{
		"run":       p.RunID,
		"processed": p.Processed,
		"total":     p.Total,
		"failed":    p.Failed,
		"remaining": p.Remaining,
	}).Info("batch progress")
}
