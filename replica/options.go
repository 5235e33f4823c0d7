package replica

import (
	"io"
	"time"

	"github.com/relab/flooding/core/logging"
)

type replicaOptions struct {
	input         io.Reader
	output        io.Writer
	logger        logging.Logger
	retryInterval time.Duration
}

// Option sets configuration options for a Replica.
type Option func(*replicaOptions)

// WithInput makes the replica read proposals from r instead of the configured input.
func WithInput(r io.Reader) Option {
	return func(ro *replicaOptions) {
		ro.input = r
	}
}

// WithOutput sets the writer that prompts and decisions are printed to. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(ro *replicaOptions) {
		ro.output = w
	}
}

// WithLogger sets the logger of the replica and its components.
func WithLogger(logger logging.Logger) Option {
	return func(ro *replicaOptions) {
		ro.logger = logger
	}
}

// WithRetryInterval sets the time between attempts to dial peers that are not up yet.
func WithRetryInterval(d time.Duration) Option {
	return func(ro *replicaOptions) {
		ro.retryInterval = d
	}
}
