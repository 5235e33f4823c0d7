package metrics

import (
	"time"

	"github.com/relab/flooding/core/eventloop"
)

// TickEvent is sent when new measurements should be recorded.
type TickEvent struct {
	// The time when the previous tick happened.
	LastTick time.Time
}

// addTicker emits a TickEvent on the event loop every interval.
// The first tick only records the time; no event is emitted for it.
func addTicker(eventLoop *eventloop.EventLoop, interval time.Duration) int {
	var lastTick time.Time
	return eventLoop.AddTicker(interval, func(tickTime time.Time) any {
		var event any
		if !lastTick.IsZero() {
			event = TickEvent{LastTick: lastTick}
		}
		lastTick = tickTime
		return event
	})
}
