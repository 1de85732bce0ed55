package smtpclient

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	smtp "github.com/alexisbouchez/smtpsend"
)

// Exchange outcomes as recorded in the outcome label.
const (
	OutcomeOK                = "ok"
	OutcomeRejected          = "rejected"
	OutcomeProtocolViolation = "protocol_violation"
	OutcomeConnectionClosed  = "connection_closed"
	OutcomeInvalidUsage      = "invalid_usage"
)

// Metrics holds the Prometheus collectors updated by every exchange.
type Metrics struct {
	exchanges *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		exchanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smtpsend",
			Name:      "exchanges_total",
			Help:      "SMTP command exchanges by command and outcome.",
		}, []string{"command", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "smtpsend",
			Name:      "exchange_duration_seconds",
			Help:      "Time from writing an SMTP command to its deciding reply.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"command"}),
	}
}

func (m *Metrics) observe(command string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(command, outcome(err)).Inc()
	m.duration.WithLabelValues(command).Observe(d.Seconds())
}

func outcome(err error) string {
	var se *smtp.SMTPError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &se):
		return OutcomeRejected
	case errors.Is(err, smtp.ErrProtocolViolation):
		return OutcomeProtocolViolation
	case errors.Is(err, smtp.ErrInvalidUsage):
		return OutcomeInvalidUsage
	default:
		return OutcomeConnectionClosed
	}
}
