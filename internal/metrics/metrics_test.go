package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveStageCountsFailures(t *testing.T) {
	before := counterValue(t, StageFailures.WithLabelValues("lipsync"))

	ObserveStage("lipsync", time.Now(), nil)
	ObserveStage("lipsync", time.Now(), errors.New("boom"))

	assert.Equal(t, before+1, counterValue(t, StageFailures.WithLabelValues("lipsync")))
}

func TestObserveJob(t *testing.T) {
	okBefore := counterValue(t, JobsProcessed.WithLabelValues("merge", "ok"))
	errBefore := counterValue(t, JobsProcessed.WithLabelValues("merge", "error"))

	ObserveJob("merge", nil)
	ObserveJob("merge", errors.New("no completed videos"))
	ObserveJob("merge", nil)

	assert.Equal(t, okBefore+2, counterValue(t, JobsProcessed.WithLabelValues("merge", "ok")))
	assert.Equal(t, errBefore+1, counterValue(t, JobsProcessed.WithLabelValues("merge", "error")))
}
