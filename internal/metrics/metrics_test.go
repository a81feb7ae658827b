package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewRecorderWithRegistry(reg)
	require.NoError(t, err)

	rec.RecordSolve(OutcomePlanned, 120*time.Millisecond, 512)
	rec.RecordSolve(OutcomePlanned, 80*time.Millisecond, 256)
	rec.RecordSolve(OutcomeInfeasible, 10*time.Millisecond, 64)
	rec.RecordPlanCost(77.61)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.solves.WithLabelValues(OutcomePlanned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.solves.WithLabelValues(OutcomeInfeasible)))
	assert.Equal(t, 77.61, testutil.ToFloat64(rec.lastCost))
}

func TestRecorderReregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewRecorderWithRegistry(reg)
	require.NoError(t, err)

	second, err := NewRecorderWithRegistry(reg)
	require.NoError(t, err, "re-registering must reuse the existing collectors")

	second.RecordSolve(OutcomeAborted, time.Millisecond, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.solves.WithLabelValues(OutcomeAborted)))
}

func TestRecorderNil(t *testing.T) {
	var rec *Recorder
	rec.RecordSolve(OutcomePlanned, time.Second, 10)
	rec.RecordPlanCost(1.0)
}
