package asyncsender

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dutow/galera/metrics"
)

const subsystem = "asyncsender"

var (
	active = metrics.NewGauge(
		"active_sessions",
		subsystem,
		"outbound IST sessions currently running",
		nil,
	)
	spawned = metrics.NewCounter(
		"spawned_total",
		subsystem,
		"outbound IST sessions spawned",
		nil,
	)
	throttled = metrics.NewCounter(
		"throttled_total",
		subsystem,
		"run() calls rejected because the spawn rate limiter wait failed",
		nil,
	)
)

type tracker struct {
	active    prometheus.Gauge
	spawned   prometheus.Counter
	throttled prometheus.Counter
}

func newTracker() *tracker {
	return &tracker{
		active:    active.WithLabelValues(),
		spawned:   spawned.WithLabelValues(),
		throttled: throttled.WithLabelValues(),
	}
}

func (t *tracker) sessionSpawned() {
	t.spawned.Inc()
	t.active.Inc()
}

func (t *tracker) sessionRemoved() {
	t.active.Dec()
}

func (t *tracker) waitThrottled() {
	t.throttled.Inc()
}
