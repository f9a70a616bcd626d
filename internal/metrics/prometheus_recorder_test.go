package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncDocument(ResultPublished)
	pr.IncDocument(ResultPublished)
	pr.IncDocument(ResultSkipped)
	pr.IncDirectiveError("exec")
	pr.ObserveStageDuration("documents", 150*time.Millisecond)
	pr.ObserveRunDuration(500 * time.Millisecond)
	pr.IncRunOutcome("clean")

	assert.InDelta(t, 2, testutil.ToFloat64(pr.documents.WithLabelValues("published")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.directiveErrors.WithLabelValues("exec")), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 5)
}

func TestPrometheusRecorder_WriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncDocument(ResultRemoved)

	path := filepath.Join(t.TempDir(), "presto.prom")
	require.NoError(t, pr.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `presto_documents_total{result="removed"} 1`))
}

func TestNilPrometheusRecorder(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncDocument(ResultFailed)
	pr.ObserveRunDuration(time.Second)
}
