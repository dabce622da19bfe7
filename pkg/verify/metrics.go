package verify

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts verification outcomes.
type Metrics struct {
	checks        *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

// NewMetrics creates the verification counters and registers them with reg
// when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "badge",
				Subsystem: "verify",
				Name:      "checks_total",
				Help:      "Total number of verification checks, by check and status.",
			},
			[]string{"check", "status"},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "badge",
				Subsystem: "verify",
				Name:      "verifications_total",
				Help:      "Total number of verification runs, by result.",
			},
			[]string{"result"}, // valid, invalid, rejected
		),
	}
	if reg != nil {
		reg.MustRegister(m.checks, m.verifications)
	}
	return m
}

// CheckCounter exposes the per-check counter.
func (m *Metrics) CheckCounter() *prometheus.CounterVec {
	return m.checks
}

// VerificationCounter exposes the per-run counter.
func (m *Metrics) VerificationCounter() *prometheus.CounterVec {
	return m.verifications
}

func (m *Metrics) observe(r *Report) {
	if m == nil {
		return
	}
	for _, c := range r.Checks {
		m.checks.WithLabelValues(c.Name, string(c.Status)).Inc()
	}

	result := "invalid"
	switch {
	case r.Credential == nil:
		result = "rejected"
	case r.Valid():
		result = "valid"
	}
	m.verifications.WithLabelValues(result).Inc()
}
