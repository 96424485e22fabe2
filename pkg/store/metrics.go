package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the adapter's observability counters. Cross-household misses
// are silent no-ops at the API surface, so the counter is the only place the
// behavior shows up; alert on it.
//
// Construct with NewMetrics and an explicit Registerer so each test (and each
// adapter instance) gets its own collectors. Passing nil leaves the
// collectors unregistered, which is convenient for throwaway instances.
type Metrics struct {
	// TenantMiss counts reads and writes that matched nothing for the
	// requesting household, labeled by entity (session, decision_event,
	// fallback_config).
	TenantMiss *prometheus.CounterVec

	// ReadonlyRejected counts writes refused because the adapter instance is
	// in readonly mode.
	ReadonlyRejected prometheus.Counter
}

// NewMetrics creates the adapter counters on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TenantMiss: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dinnerlock_tenant_miss_total",
			Help: "Reads and writes that matched no row for the requesting household.",
		}, []string{"entity"}),
		ReadonlyRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "dinnerlock_readonly_rejected_total",
			Help: "Writes rejected because the storage adapter is readonly.",
		}),
	}
}

// Entity label values for Metrics.TenantMiss.
const (
	entitySession        = "session"
	entityDecisionEvent  = "decision_event"
	entityFallbackConfig = "fallback_config"
)
