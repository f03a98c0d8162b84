package sender

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dutow/galera/metrics"
)

const subsystem = "sender"

var (
	sessionsEnded = metrics.NewCounter(
		"sessions_ended",
		subsystem,
		"IST send sessions ended, labeled by outcome",
		[]string{"outcome"},
	)
	writeSetsSent = metrics.NewCounter(
		"write_sets_sent",
		subsystem,
		"write-sets streamed to joiners",
		nil,
	)
)

type tracker struct {
	ended *prometheus.CounterVec
	sent  prometheus.Counter
}

func newTracker() *tracker {
	return &tracker{ended: sessionsEnded, sent: writeSetsSent.WithLabelValues()}
}

func (t *tracker) sent1() { t.sent.Inc() }

func (t *tracker) sessionEnded(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.ended.WithLabelValues(outcome).Inc()
}
