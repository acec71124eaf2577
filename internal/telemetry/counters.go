package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Counters tracks per-minute event volumes for operator-facing debug
// summaries. The volatile counts reset on every tick; approximate values are
// acceptable, so plain atomic increments are all the synchronization used.
// Monotonic totals are mirrored to Prometheus for /metrics.
type Counters struct {
	log      *zap.Logger
	interval time.Duration

	joins      atomic.Int64
	leaves     atomic.Int64
	samples    atomic.Int64
	rejected   atomic.Int64
	broadcasts atomic.Int64

	events *prometheus.CounterVec
}

// NewCounters creates the counter set and registers the Prometheus totals.
func NewCounters(log *zap.Logger, reg prometheus.Registerer) *Counters {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "events_total",
		Help:      "Processed live-session events by type.",
	}, []string{"type"})
	if reg != nil {
		reg.MustRegister(events)
	}
	return &Counters{
		log:      log,
		interval: time.Minute,
		events:   events,
	}
}

// IncJoin counts one processed join signal.
func (c *Counters) IncJoin() {
	c.joins.Add(1)
	c.events.WithLabelValues("join").Inc()
}

// IncLeave counts one processed leave signal.
func (c *Counters) IncLeave() {
	c.leaves.Add(1)
	c.events.WithLabelValues("leave").Inc()
}

// IncSample counts one ingested emotion sample.
func (c *Counters) IncSample() {
	c.samples.Add(1)
	c.events.WithLabelValues("emotion_sample").Inc()
}

// IncRejected counts one rejected inbound event.
func (c *Counters) IncRejected() {
	c.rejected.Add(1)
	c.events.WithLabelValues("rejected").Inc()
}

// IncBroadcast counts one room fan-out.
func (c *Counters) IncBroadcast() {
	c.broadcasts.Add(1)
	c.events.WithLabelValues("broadcast").Inc()
}

// Run logs and resets the per-minute counters on a fixed interval until ctx
// is cancelled. Independent of all per-connection work.
func (c *Counters) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Counters) flush() {
	joins := c.joins.Swap(0)
	leaves := c.leaves.Swap(0)
	samples := c.samples.Swap(0)
	rejected := c.rejected.Swap(0)
	broadcasts := c.broadcasts.Swap(0)
	if joins == 0 && leaves == 0 && samples == 0 && rejected == 0 && broadcasts == 0 {
		return
	}
	c.log.Info("per-minute event summary",
		zap.Int64("joins", joins),
		zap.Int64("leaves", leaves),
		zap.Int64("emotion_samples", samples),
		zap.Int64("rejected", rejected),
		zap.Int64("broadcasts", broadcasts))
}
