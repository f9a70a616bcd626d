package metrics

import (
	"testing"
	"time"
)

type testRecorder struct {
	documents map[ResultLabel]int
	outcomes  map[string]int
	runs      int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{documents: map[ResultLabel]int{}, outcomes: map[string]int{}}
}

func (t *testRecorder) IncDocument(result ResultLabel)             { t.documents[result]++ }
func (t *testRecorder) IncDirectiveError(string)                   {}
func (t *testRecorder) ObserveStageDuration(string, time.Duration) {}
func (t *testRecorder) ObserveRunDuration(time.Duration)           { t.runs++ }
func (t *testRecorder) IncRunOutcome(outcome string)               { t.outcomes[outcome]++ }

func TestRecorderImplementations(t *testing.T) {
	var _ Recorder = NoopRecorder{}
	var _ Recorder = (*PrometheusRecorder)(nil)

	var r Recorder = newTestRecorder()
	r.IncDocument(ResultPublished)
	r.ObserveRunDuration(time.Millisecond)
	r.IncRunOutcome("clean")

	tr := r.(*testRecorder)
	if tr.documents[ResultPublished] != 1 || tr.runs != 1 || tr.outcomes["clean"] != 1 {
		t.Fatalf("unexpected recorder state: %+v", tr)
	}
}
