package universe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dataizationsTotal counts successful dataizations.
	dataizationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sodg_dataizations_total",
		Help: "The total number of successful dataizations",
	})

	// atomInvocationsTotal counts atom calls performed during dispatch.
	atomInvocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sodg_atom_invocations_total",
		Help: "The total number of atom invocations",
	})

	// depthExceededTotal counts evaluations aborted by the depth guard.
	depthExceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sodg_depth_exceeded_total",
		Help: "The total number of evaluations that hit the recursion bound",
	})
)
