package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/relab/flooding"
	"github.com/relab/flooding/core/eventloop"
)

func enablePeers(el *eventloop.EventLoop, reg prometheus.Registerer) {
	factory := promauto.With(reg)
	connections := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "peer_connections_total",
		Help:      "Number of peer connections established.",
	})
	crashes := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "peer_crashes_total",
		Help:      "Number of peer connections that failed.",
	})

	eventloop.Register(el, func(_ flooding.PeerConnectedEvent) {
		connections.Inc()
	})
	eventloop.Register(el, func(_ flooding.PeerCrashEvent) {
		crashes.Inc()
	})
}
