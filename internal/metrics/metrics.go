// Package metrics exposes operation counters in the Prometheus text format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"keyadmin/entity"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keyadmin"

type Metrics struct {
	registry *prometheus.Registry

	keysIssued      *prometheus.CounterVec
	accountsPurged  prometheus.Counter
	purgeFailures   prometheus.Counter
	keysRemoved     *prometheus.CounterVec
	sessionsRemoved prometheus.Counter
	profilesRemoved prometheus.Counter
	storeLoads      *prometheus.CounterVec
	storeFailures   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		keysIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_issued_total",
			Help:      "Paid keys issued, by plan.",
		}, []string{"plan"}),
		accountsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_purged_total",
			Help:      "Accounts whose data was deleted.",
		}),
		purgeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_purge_failures_total",
			Help:      "Account deletions that returned an error.",
		}),
		keysRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_removed_total",
			Help:      "Keys retired or tombstoned, by schema.",
		}, []string{"schema"}),
		sessionsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_entries_removed_total",
			Help:      "Session entries removed.",
		}),
		profilesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_removed_total",
			Help:      "Account profiles removed.",
		}),
		storeLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_loads_total",
			Help:      "Legacy blob loads, by the backend that served them.",
		}, []string{"source"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Failed remote store calls, by operation.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.keysIssued,
		m.accountsPurged,
		m.purgeFailures,
		m.keysRemoved,
		m.sessionsRemoved,
		m.profilesRemoved,
		m.storeLoads,
		m.storeFailures,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) KeyIssued(plan entity.Plan) {
	if m == nil {
		return
	}
	m.keysIssued.WithLabelValues(string(plan)).Inc()
}

func (m *Metrics) AccountPurged(r *entity.PurgeResult) {
	if m == nil {
		return
	}
	if r == nil {
		m.purgeFailures.Inc()
		return
	}
	m.accountsPurged.Inc()
	m.keysRemoved.WithLabelValues("legacy").Add(float64(r.LegacyCredentials))
	m.keysRemoved.WithLabelValues(string(entity.ClassFree)).Add(float64(r.FreeCredentials))
	m.keysRemoved.WithLabelValues(string(entity.ClassPaid)).Add(float64(r.PaidCredentials))
	m.sessionsRemoved.Add(float64(r.RemovedSessionEntries))
	if r.ProfileRemoved {
		m.profilesRemoved.Inc()
	}
}

// StoreLoad and StoreFailure satisfy keystore.Recorder.
func (m *Metrics) StoreLoad(source string) {
	if m == nil {
		return
	}
	m.storeLoads.WithLabelValues(source).Inc()
}

func (m *Metrics) StoreFailure(op string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(op).Inc()
}
