// Package network connects a process to its peers over TCP.
//
// Every pair of processes shares one connection. The process that dials sends a JoinMsg identifying
// itself, and the process that accepts answers with its own JoinMsg. After the handshake, only
// proposals and decisions may be sent. Received messages are posted to the event loop in the order
// they arrive on each connection. A connection that fails for any reason is reported once as a
// PeerCrashEvent and is never re-established.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/relab/flooding"
	"github.com/relab/flooding/core/eventloop"
	"github.com/relab/flooding/core/logging"
	"github.com/relab/flooding/internal/protostream"
	"go.uber.org/multierr"
)

// Node manages the connections of a process to its peers.
type Node struct {
	eventLoop *eventloop.EventLoop
	logger    logging.Logger
	self      flooding.PeerInfo
	opts      options

	mut      sync.Mutex
	listener net.Listener
	peers    map[flooding.ID]*peer
	crashed  map[flooding.ID]bool
	closing  bool

	wg sync.WaitGroup
}

// New returns a node for the process described by self.
func New(eventLoop *eventloop.EventLoop, logger logging.Logger, self flooding.PeerInfo, opts ...Option) *Node {
	n := &Node{
		eventLoop: eventLoop,
		logger:    logger,
		self:      self,
		opts: options{
			connectTimeout: 5 * time.Second,
			maxMessageSize: protostream.DefaultMaxMessageSize,
		},
		peers:   make(map[flooding.ID]*peer),
		crashed: make(map[flooding.ID]bool),
	}
	for _, opt := range opts {
		opt(&n.opts)
	}
	return n
}

// Serve accepts peer connections on lis until the node is closed.
func (n *Node) Serve(lis net.Listener) {
	n.mut.Lock()
	n.listener = lis
	n.mut.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			conn, err := lis.Accept()
			if err != nil {
				if !n.isClosing() {
					n.logger.Errorf("Failed to accept connection: %v", err)
				}
				return
			}
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.accept(conn)
			}()
		}
	}()
}

// Addr returns the address the node accepts connections on, or nil if it is not serving.
func (n *Node) Addr() net.Addr {
	n.mut.Lock()
	defer n.mut.Unlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

func (n *Node) accept(conn net.Conn) {
	reader := protostream.NewReader(conn, n.opts.maxMessageSize)
	_ = conn.SetDeadline(time.Now().Add(n.opts.connectTimeout))

	msg, err := reader.Read()
	if err != nil {
		n.logger.Infof("Handshake from %s failed: %v", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}
	join, ok := msg.(flooding.JoinMsg)
	if !ok {
		n.logger.Infof("Handshake from %s failed: %v: expected Join, got %v", conn.RemoteAddr(), errProtocol, msg)
		_ = conn.Close()
		return
	}
	if err := protostream.NewWriter(conn).Write(flooding.JoinMsg{ID: n.self.ID, Addr: n.self.Addr}); err != nil {
		n.logger.Infof("Handshake with %d failed: %v", join.ID, err)
		_ = conn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})
	n.add(flooding.PeerInfo{ID: join.ID, Addr: join.Addr}, conn, reader)
}

// Connect dials every peer and waits for their handshakes.
// Peers that cannot be reached are skipped; the returned error describes every failure.
// It returns the peers that were connected.
func (n *Node) Connect(ctx context.Context, peers []flooding.PeerInfo) ([]flooding.ID, error) {
	var (
		connected []flooding.ID
		errs      error
	)
	for _, info := range peers {
		if info.ID == n.self.ID {
			continue
		}
		if err := n.dial(ctx, info); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("peer %v: %w", info, err))
			continue
		}
		connected = append(connected, info.ID)
	}
	return connected, errs
}

func (n *Node) dial(ctx context.Context, info flooding.PeerInfo) error {
	ctx, cancel := context.WithTimeout(ctx, n.opts.connectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", info.Addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := protostream.NewWriter(conn).Write(flooding.JoinMsg{ID: n.self.ID, Addr: n.self.Addr}); err != nil {
		return multierr.Append(err, conn.Close())
	}
	reader := protostream.NewReader(conn, n.opts.maxMessageSize)
	msg, err := reader.Read()
	if err != nil {
		return multierr.Append(err, conn.Close())
	}
	join, ok := msg.(flooding.JoinMsg)
	if !ok {
		return multierr.Append(fmt.Errorf("%w: expected Join, got %v", errProtocol, msg), conn.Close())
	}
	if join.ID != info.ID {
		return multierr.Append(fmt.Errorf("%w: expected process %d, got %d", errProtocol, info.ID, join.ID), conn.Close())
	}
	_ = conn.SetDeadline(time.Time{})

	if !n.add(info, conn, reader) {
		return errors.New("already connected")
	}
	return nil
}

// add registers an established connection and starts its reader and writer.
// It returns false, and closes the connection, if the peer is already connected or has crashed.
func (n *Node) add(info flooding.PeerInfo, conn net.Conn, reader *protostream.Reader) bool {
	n.mut.Lock()
	if n.closing || info.ID == n.self.ID || n.peers[info.ID] != nil || n.crashed[info.ID] {
		n.mut.Unlock()
		n.logger.Infof("Rejecting connection from %v", info)
		_ = conn.Close()
		return false
	}
	p := newPeer(n.logger, info, conn, reader)
	n.peers[info.ID] = p
	n.mut.Unlock()

	n.logger.Infof("Connected to %v", info)
	// the engine must learn about the peer before any of its messages
	n.eventLoop.AddEvent(flooding.PeerConnectedEvent{ID: info.ID})

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		n.fail(p, p.readLoop(n.eventLoop.AddEvent))
	}()
	go func() {
		defer n.wg.Done()
		if err := p.writeLoop(); err != nil {
			n.fail(p, err)
		}
	}()
	return true
}

// fail removes the peer and reports the crash, unless the node is closing.
// Only the first failure of a peer is reported.
func (n *Node) fail(p *peer, err error) {
	n.mut.Lock()
	if n.peers[p.info.ID] != p {
		n.mut.Unlock()
		return
	}
	delete(n.peers, p.info.ID)
	n.crashed[p.info.ID] = true
	closing := n.closing
	n.mut.Unlock()

	_ = p.close()
	if closing {
		return
	}
	n.logger.Infof("Connection to %v failed: %v", p.info, err)
	n.eventLoop.AddEvent(flooding.PeerCrashEvent{ID: p.info.ID})
}

// Broadcast queues msg for sending to every connected peer. It does not block.
func (n *Node) Broadcast(msg flooding.Message) {
	n.mut.Lock()
	defer n.mut.Unlock()
	for _, p := range n.peers {
		p.send(msg)
	}
}

// Peers returns the IDs of the connected peers in ascending order.
func (n *Node) Peers() []flooding.ID {
	n.mut.Lock()
	defer n.mut.Unlock()
	ids := make([]flooding.ID, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (n *Node) isClosing() bool {
	n.mut.Lock()
	defer n.mut.Unlock()
	return n.closing
}

// Close stops accepting connections, closes every peer connection and waits for the node's goroutines to exit.
// No PeerCrashEvents are raised for connections closed by Close.
func (n *Node) Close() (err error) {
	n.mut.Lock()
	if n.closing {
		n.mut.Unlock()
		return nil
	}
	n.closing = true
	peers := n.peers
	n.peers = make(map[flooding.ID]*peer)
	lis := n.listener
	n.mut.Unlock()

	if lis != nil {
		err = multierr.Append(err, lis.Close())
	}
	for _, p := range peers {
		err = multierr.Append(err, p.close())
	}
	n.wg.Wait()
	return err
}
