package receiver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dutow/galera/metrics"
)

const subsystem = "receiver"

var (
	sessionsStarted = metrics.NewCounter(
		"sessions_started",
		subsystem,
		"IST receive sessions started",
		nil,
	)
	sessionsEnded = metrics.NewCounter(
		"sessions_ended",
		subsystem,
		"IST receive sessions ended, labeled by exit code",
		[]string{"code"},
	)
	currentSeqno = metrics.NewGauge(
		"current_seqno",
		subsystem,
		"last seqno dispatched by the active session",
		nil,
	)
	remaining = metrics.NewGauge(
		"remaining",
		subsystem,
		"write-sets left to stream in the active session (last - current + 1)",
		nil,
	)
)

type tracker struct {
	started   prometheus.Counter
	ended     *prometheus.CounterVec
	current   prometheus.Gauge
	remaining prometheus.Gauge
}

func newTracker() *tracker {
	return &tracker{
		started:   sessionsStarted.WithLabelValues(),
		ended:     sessionsEnded,
		current:   currentSeqno.WithLabelValues(),
		remaining: remaining.WithLabelValues(),
	}
}

func (t *tracker) sessionStarted() {
	t.started.Inc()
}

func (t *tracker) sessionEnded(code int) {
	t.ended.WithLabelValues(codeLabel(code)).Inc()
}

func (t *tracker) progress(current, last int64) {
	t.current.Set(float64(current))
	if last > current {
		t.remaining.Set(float64(last - current + 1))
	} else {
		t.remaining.Set(0)
	}
}

func codeLabel(code int) string {
	switch code {
	case 0:
		return "ok"
	case 4:
		return "interrupted"
	case 22:
		return "invalid"
	case 71:
		return "protocol"
	default:
		return "transport"
	}
}
