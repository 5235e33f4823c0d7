// Package replica assembles the components of a flooding consensus process and runs them.
package replica

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/relab/flooding"
	"github.com/relab/flooding/consensus"
	"github.com/relab/flooding/core/eventloop"
	"github.com/relab/flooding/core/logging"
	"github.com/relab/flooding/driver"
	"github.com/relab/flooding/internal/config"
	"github.com/relab/flooding/metrics"
	"github.com/relab/flooding/network"
	"github.com/relab/flooding/rendezvous"
	"go.uber.org/multierr"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultRetryInterval  = 100 * time.Millisecond
	eventLoopBufferSize   = 100
)

// Replica is a participant in the flooding consensus protocol.
type Replica struct {
	cfg       *config.NodeConfig
	opts      replicaOptions
	logger    logging.Logger
	self      flooding.PeerInfo
	eventLoop *eventloop.EventLoop
	node      *network.Node

	metricsListener net.Listener
	inputFile       *os.File

	engine *consensus.Engine
	driver *driver.Driver
	status *metrics.Status

	started        bool
	servingMetrics bool
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	done           chan struct{}
	err            error
}

// New returns a replica for the given configuration.
// The replica starts accepting peer connections immediately, but does not take part in the protocol until Start is called.
func New(cfg *config.NodeConfig, opts ...Option) (_ *Replica, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Replica{
		cfg: cfg,
		opts: replicaOptions{
			output:        os.Stdout,
			retryInterval: defaultRetryInterval,
		},
		cancel: func() {},
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&r.opts)
	}
	r.logger = r.opts.logger
	if r.logger == nil {
		r.logger = logging.New(fmt.Sprintf("p%d", cfg.ID))
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("replica: failed to listen on %s: %w", cfg.Listen, err)
	}
	if cfg.MetricsListen != "" {
		r.metricsListener, err = net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("replica: failed to listen on %s: %w", cfg.MetricsListen, err), lis.Close())
		}
	}

	r.self = flooding.PeerInfo{ID: cfg.ID, Addr: cfg.Advertise}
	if r.self.Addr == "" {
		r.self.Addr = lis.Addr().String()
	}
	r.eventLoop = eventloop.New(r.logger, eventLoopBufferSize)

	nodeOpts := []network.Option{}
	if cfg.ConnectTimeout > 0 {
		nodeOpts = append(nodeOpts, network.WithConnectTimeout(cfg.ConnectTimeout))
	}
	r.node = network.New(r.eventLoop, r.logger, r.self, nodeOpts...)
	r.node.Serve(lis)
	return r, nil
}

// Info returns the ID and address of the replica.
func (r *Replica) Info() flooding.PeerInfo {
	return r.self
}

// MetricsAddr returns the address metrics are served on, or nil if metrics are disabled.
func (r *Replica) MetricsAddr() net.Addr {
	if r.metricsListener == nil {
		return nil
	}
	return r.metricsListener.Addr()
}

// Peers returns the IDs of the connected peers.
func (r *Replica) Peers() []flooding.ID {
	return r.node.Peers()
}

// Connect establishes the initial connections. Peers are found in the static peer list and,
// if configured, through the rendezvous service. Peers that cannot be reached within the
// connect timeout are skipped; they do not take part in the first round.
func (r *Replica) Connect(ctx context.Context) error {
	peers := r.cfg.DialPeers()
	if r.cfg.Rendezvous != "" {
		members, err := rendezvous.Join(ctx, r.cfg.Rendezvous, r.self)
		if err != nil {
			return fmt.Errorf("replica: failed to join %s: %w", r.cfg.Rendezvous, err)
		}
		r.logger.Infof("Rendezvous returned %d members", len(members))
		for _, member := range members {
			if !slices.ContainsFunc(peers, func(p flooding.PeerInfo) bool { return p.ID == member.ID }) {
				peers = append(peers, member)
			}
		}
	}

	timeout := r.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.dialAll(ctx, peers)
	r.awaitPeers(ctx, r.cfg.AwaitPeers())
	return nil
}

// dialAll dials the peers until every one is connected or ctx expires.
func (r *Replica) dialAll(ctx context.Context, peers []flooding.PeerInfo) {
	pending := peers
	for len(pending) > 0 {
		_, err := r.node.Connect(ctx, pending)
		connected := r.node.Peers()
		pending = slices.DeleteFunc(pending, func(p flooding.PeerInfo) bool {
			return slices.Contains(connected, p.ID)
		})
		if err == nil || len(pending) == 0 {
			return
		}
		select {
		case <-ctx.Done():
			r.logger.Warnf("Giving up on peers %v: %v", pending, err)
			return
		case <-time.After(r.opts.retryInterval):
		}
	}
}

// awaitPeers waits until every peer in ids has connected to the replica or ctx expires.
func (r *Replica) awaitPeers(ctx context.Context, ids []flooding.ID) {
	if len(ids) == 0 {
		return
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		connected := r.node.Peers()
		missing := slices.DeleteFunc(slices.Clone(ids), func(id flooding.ID) bool {
			return slices.Contains(connected, id)
		})
		if len(missing) == 0 {
			return
		}
		select {
		case <-ctx.Done():
			r.logger.Warnf("Peers %v did not connect", missing)
			return
		case <-ticker.C:
		}
	}
}

// Start creates the engine with the peers connected so far and runs the replica in the background.
func (r *Replica) Start() error {
	peers := r.node.Peers()
	r.engine = consensus.New(r.eventLoop, r.logger, r.node, r.cfg.ID, peers,
		consensus.WithRetainRounds(r.cfg.RetainRounds),
	)

	source, err := r.source()
	if err != nil {
		return err
	}
	r.driver = driver.New(r.eventLoop, r.logger, source, r.opts.output, flooding.Round(r.cfg.MaxRounds))

	var ctx context.Context
	ctx, r.cancel = context.WithCancel(context.Background())

	if r.metricsListener != nil {
		handler, err := r.enableMetrics()
		if err != nil {
			r.cancel()
			return err
		}
		r.servingMetrics = true
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := metrics.Serve(ctx, r.logger, r.metricsListener, handler); err != nil {
				r.logger.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	r.engine.Start()
	r.started = true
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.eventLoop.Run(ctx)
	}()
	go func() {
		r.err = r.driver.Run(ctx)
		close(r.done)
	}()
	return nil
}

func (r *Replica) source() (driver.Source, error) {
	if r.cfg.Auto {
		return driver.NewAutoSource(r.cfg.ID, r.cfg.RateLimit), nil
	}
	input := r.opts.input
	if input == nil {
		if r.cfg.Input == "" || r.cfg.Input == "-" {
			input = os.Stdin
		} else {
			f, err := os.Open(r.cfg.Input)
			if err != nil {
				return nil, fmt.Errorf("replica: failed to open input: %w", err)
			}
			r.inputFile = f
			input = f
		}
	}
	return driver.NewLineSource(input, r.opts.output), nil
}

func (r *Replica) enableMetrics() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	names := r.cfg.Metrics
	if len(names) == 0 {
		names = metrics.AllMetrics
	}
	status, err := metrics.Enable(r.eventLoop, r.logger, reg, r.engine, r.cfg.MeasurementInterval, names...)
	if err != nil {
		return nil, err
	}
	r.status = status
	return reg, nil
}

// Status returns the latest sample of the engine's state.
// It returns false if metrics are disabled or no sample has been taken yet.
func (r *Replica) Status() (consensus.Status, bool) {
	if r.status == nil {
		return consensus.Status{}, false
	}
	s, at := r.status.Get()
	return s, !at.IsZero()
}

// Done is closed when the replica has completed the configured number of rounds,
// its input has ended, or it was stopped.
func (r *Replica) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that stopped the replica, if any. It must only be called after Done is closed.
func (r *Replica) Err() error {
	if errors.Is(r.err, context.Canceled) {
		return nil
	}
	return r.err
}

// Stop stops the replica, leaves the rendezvous service and closes every connection.
func (r *Replica) Stop() (err error) {
	r.cancel()
	if r.started {
		<-r.done
	}
	r.wg.Wait()

	if r.cfg.Rendezvous != "" {
		err = multierr.Append(err, r.leave())
	}
	err = multierr.Append(err, r.node.Close())
	if r.metricsListener != nil && !r.servingMetrics {
		err = multierr.Append(err, r.metricsListener.Close())
	}
	if r.inputFile != nil {
		err = multierr.Append(err, r.inputFile.Close())
	}
	return err
}

func (r *Replica) leave() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	client, err := rendezvous.NewClient(r.cfg.Rendezvous)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, client.Close()) }()
	return client.Leave(ctx, r.self)
}

// Run connects to the peers, runs the replica until it is done or ctx is canceled, and stops it.
func (r *Replica) Run(ctx context.Context) error {
	if err := r.Connect(ctx); err != nil {
		return multierr.Append(err, r.Stop())
	}
	r.logger.Infof("Connected to peers %v", r.Peers())
	if err := r.Start(); err != nil {
		return multierr.Append(err, r.Stop())
	}
	select {
	case <-r.Done():
	case <-ctx.Done():
	}
	return multierr.Append(r.Err(), r.Stop())
}
