package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/relab/flooding"
	"github.com/relab/flooding/core/eventloop"
	"github.com/relab/flooding/core/logging"
)

// rounds counts the rounds a process leaves, by outcome, and measures how long they last.
type rounds struct {
	logger logging.Logger

	total        *prometheus.CounterVec
	currentRound prometheus.Gauge
	duration     prometheus.Histogram

	roundStart time.Time
	stats      durationStats
}

func enableRounds(el *eventloop.EventLoop, logger logging.Logger, reg prometheus.Registerer) *rounds {
	factory := promauto.With(reg)
	r := &rounds{
		logger: logger,
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Number of rounds completed, by outcome (decided or abandoned).",
		}, []string{"outcome"}),
		currentRound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_round",
			Help:      "The round the process is in.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Time spent in each round.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		roundStart: time.Now(),
	}
	// both outcomes are exported from the start
	r.total.WithLabelValues("decided")
	r.total.WithLabelValues("abandoned")

	eventloop.Register(el, func(event flooding.RoundAdvanceEvent) {
		r.advance(event, time.Now())
	})
	eventloop.Register(el, func(_ TickEvent) {
		r.tick()
	}, eventloop.Prioritize())
	return r
}

func (r *rounds) advance(event flooding.RoundAdvanceEvent, now time.Time) {
	outcome := "abandoned"
	if event.Decided {
		outcome = "decided"
	}
	r.total.WithLabelValues(outcome).Inc()
	r.currentRound.Set(float64(event.Round))

	d := now.Sub(r.roundStart)
	r.roundStart = now
	r.duration.Observe(d.Seconds())
	r.stats.update(d)
}

// tick logs the round durations since the previous tick.
func (r *rounds) tick() {
	mean, stddev, max, count := r.stats.get()
	if count == 0 {
		return
	}
	r.logger.Infof("Rounds: %d completed, mean duration %v (stddev %v, max %v)", count, mean, stddev, max)
	r.stats.reset()
}
