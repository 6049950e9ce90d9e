package ddns

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the writes made by an Updater.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	records     *prometheus.CounterVec
	failures    *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics creates the updater metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pddns",
			Name:      "records_total",
			Help:      "DNS records handled, by domain and action (updated, created, unchanged).",
		}, []string{"domain", "action"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pddns",
			Name:      "reconcile_failures_total",
			Help:      "Reconciliations of a domain that ended in an error.",
		}, []string{"domain"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pddns",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful reconciliation of a domain.",
		}, []string{"domain"}),
	}
	if reg != nil {
		reg.MustRegister(m.records, m.failures, m.lastSuccess)
	}
	return m
}

func (m *Metrics) updated(domain string)   { m.record(domain, "updated") }
func (m *Metrics) created(domain string)   { m.record(domain, "created") }
func (m *Metrics) unchanged(domain string) { m.record(domain, "unchanged") }

func (m *Metrics) record(domain, action string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(domain, action).Inc()
}

func (m *Metrics) result(domain string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.failures.WithLabelValues(domain).Inc()
		return
	}
	m.lastSuccess.WithLabelValues(domain).Set(float64(time.Now().Unix()))
}
