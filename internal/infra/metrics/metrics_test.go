package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

// value reads a counter or gauge from the default registry; zero when the
// series was never touched
func value(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v != lp.GetValue() {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestRecorder(t *testing.T) {
	var r Recorder
	done := map[string]string{"format": "gerber", "status": "completed", "kind": ""}
	before := value(t, "cam_analyses_finished_total", done)
	r.Finished(design.FormatGerber, analysis.StatusCompleted, "", 2*time.Second)
	assert.Equal(t, before+1, value(t, "cam_analyses_finished_total", done))

	r.Finished("", analysis.StatusFailed, analysis.KindFormatUnrecognized, time.Millisecond)
	assert.Equal(t, 1.0, value(t, "cam_analyses_finished_total",
		map[string]string{"format": "unknown", "status": "failed", "kind": "FormatUnrecognized"}))

	r.Issues([]camrules.Issue{
		{Type: camrules.TypeSpacing, Severity: camrules.SeverityCritical},
		{Type: camrules.TypeSpacing, Severity: camrules.SeverityCritical},
	})
	assert.Equal(t, 2.0, value(t, "cam_issues_total", map[string]string{"type": "spacing", "severity": "critical"}))

	r.QueueDepth(3)
	assert.Equal(t, 3.0, value(t, "cam_queue_depth", nil))
}
