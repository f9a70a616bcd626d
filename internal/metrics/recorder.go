package metrics

import "time"

// ResultLabel enumerates per-document outcomes for counters.
type ResultLabel string

const (
	ResultPublished ResultLabel = "published"
	ResultUnchanged ResultLabel = "unchanged"
	ResultSkipped   ResultLabel = "skipped"
	ResultFailed    ResultLabel = "failed"
	ResultRemoved   ResultLabel = "removed"
)

// Recorder defines the hooks a publish run reports through.
type Recorder interface {
	IncDocument(result ResultLabel)
	IncDirectiveError(kind string)
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome string) // outcome: clean|errors|failed
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncDocument(ResultLabel)                    {}
func (NoopRecorder) IncDirectiveError(string)                   {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncRunOutcome(string)                       {}
