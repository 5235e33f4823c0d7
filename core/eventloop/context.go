package eventloop

import (
	"context"

	"github.com/relab/flooding"
)

// RoundContext returns a context that is canceled when the process leaves the given round.
func (el *EventLoop) RoundContext(round flooding.Round) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(el.Context())

	id := Register(el, func(event flooding.RoundAdvanceEvent) {
		if event.Round > round {
			cancel()
		}
	}, Prioritize(), UnsafeRunInAddEvent())

	return ctx, func() {
		Unregister[flooding.RoundAdvanceEvent](el, id)
		cancel()
	}
}
