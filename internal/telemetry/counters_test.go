package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFlushResetsVolatileCounters(t *testing.T) {
	c := NewCounters(zap.NewNop(), prometheus.NewRegistry())

	c.IncJoin()
	c.IncJoin()
	c.IncLeave()
	c.IncSample()
	require.Equal(t, int64(2), c.joins.Load())

	c.flush()
	require.Zero(t, c.joins.Load())
	require.Zero(t, c.leaves.Load())
	require.Zero(t, c.samples.Load())

	// flushing again with nothing recorded is fine
	c.flush()
}

func TestPrometheusTotalsAreMonotonic(t *testing.T) {
	c := NewCounters(zap.NewNop(), prometheus.NewRegistry())

	c.IncJoin()
	c.IncJoin()
	c.flush() // resets volatile counts only

	c.IncJoin()
	require.InDelta(t, 3, testutil.ToFloat64(c.events.WithLabelValues("join")), 0.001)
	require.InDelta(t, 0, testutil.ToFloat64(c.events.WithLabelValues("leave")), 0.001)
}

func TestNilRegistererIsAllowed(t *testing.T) {
	c := NewCounters(zap.NewNop(), nil)
	c.IncBroadcast()
	c.IncRejected()
	require.Equal(t, int64(1), c.broadcasts.Load())
	require.Equal(t, int64(1), c.rejected.Load())
}
