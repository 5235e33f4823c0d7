package network

import "time"

type options struct {
	connectTimeout time.Duration
	maxMessageSize uint32
}

// Option configures a Node.
type Option func(*options)

// WithConnectTimeout sets the time allowed for dialing a peer and exchanging handshakes.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

// WithMaxMessageSize sets the size of the largest message accepted from a peer.
func WithMaxMessageSize(size uint32) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}
