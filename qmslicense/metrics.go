package qmslicense

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts license verifications and issuances. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	verifications *prometheus.CounterVec
	issued        *prometheus.CounterVec
}

// NewMetrics creates the license counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qms",
			Subsystem: "license",
			Name:      "verifications_total",
			Help:      "License token verifications by resulting status.",
		}, []string{"status"}),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qms",
			Subsystem: "license",
			Name:      "issued_total",
			Help:      "Signed license tokens by tier.",
		}, []string{"tier"}),
	}
	for _, c := range []prometheus.Collector{m.verifications, m.issued} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeVerification(s Status) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) observeIssued(t Tier) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(t.String()).Inc()
}
