package rescue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's observability counters. Construct with NewMetrics
// and an explicit Registerer; nil leaves the collectors unregistered.
type Metrics struct {
	// Rescues counts fired rescues, labeled by trigger reason.
	Rescues *prometheus.CounterVec
}

// NewMetrics creates the engine counters on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rescues: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dinnerlock_rescues_total",
			Help: "Rescues fired, labeled by trigger reason.",
		}, []string{"reason"}),
	}
}
