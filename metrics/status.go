package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/relab/flooding/consensus"
	"github.com/relab/flooding/core/eventloop"
)

// Status holds the latest sample of an engine's status.
// It is safe for concurrent use.
type Status struct {
	mut       sync.Mutex
	status    consensus.Status
	sampledAt time.Time
}

// Get returns the latest sample and the time it was taken.
// The time is zero if no sample has been taken yet.
func (s *Status) Get() (consensus.Status, time.Time) {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.status, s.sampledAt
}

func (s *Status) set(status consensus.Status, now time.Time) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.status = status
	s.sampledAt = now
}

func enableStatus(el *eventloop.EventLoop, reg prometheus.Registerer, engine *consensus.Engine, status *Status) {
	factory := promauto.With(reg)
	livePeers := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_peers",
		Help:      "Number of peers the process is connected to.",
	})
	proposalSetSize := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "proposal_set_size",
		Help:      "Number of distinct values the process has observed.",
	})
	trackedRounds := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_rounds",
		Help:      "Number of rounds whose state is kept in memory.",
	})

	// the engine may only be read on the event loop
	eventloop.Register(el, func(_ TickEvent) {
		s := engine.Status()
		status.set(s, time.Now())
		livePeers.Set(float64(len(s.LivePeers)))
		proposalSetSize.Set(float64(s.Values))
		trackedRounds.Set(float64(s.TrackedRounds))
	})
	// take the first sample as soon as the event loop runs
	el.AddEvent(TickEvent{})
}
