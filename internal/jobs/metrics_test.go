package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("reconcile").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("reconcile").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("reconcile", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("reconcile", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("reconcile")))
}

func TestAddDriftIgnoresEmptyRuns(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddDrift(4, 0)
	m.AddDrift(4, 2)
	m.AddDrift(0, 1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.drift.WithLabelValues("4")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.drift.WithLabelValues("0")))

	var nilMetrics *Metrics
	require.NoError(t, nilMetrics.Track("noop").End(nil))
	nilMetrics.AddDrift(1, 1)
}
