package consensus

import "github.com/relab/flooding"

type options struct {
	retainRounds flooding.Round
}

// Option sets configuration options for the Engine.
type Option func(*options)

// WithRetainRounds makes the engine discard the state of rounds that are more than n rounds behind the current round.
// Inputs that name a discarded round are treated as stale.
// The default, 0, keeps the state of every round.
func WithRetainRounds(n uint64) Option {
	return func(o *options) {
		o.retainRounds = flooding.Round(n)
	}
}
