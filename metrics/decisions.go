package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/relab/flooding"
	"github.com/relab/flooding/core/eventloop"
)

func enableDecisions(el *eventloop.EventLoop, reg prometheus.Registerer) {
	decisions := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Number of rounds decided, by origin (local if this process computed the decision, remote if it was adopted).",
	}, []string{"origin"})
	local := decisions.WithLabelValues("local")
	remote := decisions.WithLabelValues("remote")

	eventloop.Register(el, func(event flooding.DecideEvent) {
		if event.Remote {
			remote.Inc()
		} else {
			local.Inc()
		}
	})
}
