package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Saga observes provisioning and deprovisioning outcomes. The compensation
// failure counter is the operator signal for residual orphaned credentials.
type Saga struct {
	ProvisionTotal         *prometheus.CounterVec
	DeprovisionTotal       *prometheus.CounterVec
	CompensationFailures   *prometheus.CounterVec
	PartialDeprovisionings *prometheus.CounterVec
}

// NewSaga builds and registers the saga metric set on reg.
func NewSaga(reg prometheus.Registerer) *Saga {
	s := &Saga{
		ProvisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careflow",
			Name:      "provision_total",
			Help:      "Provisioning saga runs by entity kind and outcome.",
		}, []string{"kind", "outcome"}),
		DeprovisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careflow",
			Name:      "deprovision_total",
			Help:      "Deprovisioning saga runs by entity kind and outcome.",
		}, []string{"kind", "outcome"}),
		CompensationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careflow",
			Name:      "compensation_failures_total",
			Help:      "Compensating deletes that failed, leaving an orphaned credential.",
		}, []string{"kind"}),
		PartialDeprovisionings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careflow",
			Name:      "partial_deprovisionings_total",
			Help:      "Deprovisioning runs that stopped partway across the two stores.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(s.ProvisionTotal, s.DeprovisionTotal, s.CompensationFailures, s.PartialDeprovisionings)
	}
	return s
}
