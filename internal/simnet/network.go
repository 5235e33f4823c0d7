// Package simnet provides a deterministic, simulated network of consensus engines for testing.
//
// Each directed link between two processes is a FIFO queue. The network repeatedly picks a
// non-empty link using a seeded random source and delivers the message at its head, so the
// interleaving of links is arbitrary but reproducible, while the order on each link is preserved.
package simnet

import (
	"cmp"
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"github.com/relab/flooding"
	"github.com/relab/flooding/consensus"
	"github.com/relab/flooding/core/eventloop"
	"github.com/relab/flooding/core/logging"
)

// ProposeFunc returns the value a process proposes in a round.
type ProposeFunc func(id flooding.ID, round flooding.Round) flooding.Value

type link struct {
	from flooding.ID
	to   flooding.ID
}

func (l link) String() string {
	return fmt.Sprintf("%d→%d", l.from, l.to)
}

// connectionLost is delivered on a link after the messages that were sent on it before it failed.
type connectionLost struct{}

// Network is a simulated network of processes running the flooding protocol.
type Network struct {
	rnd     *rand.Rand
	nodes   map[flooding.ID]*Node
	ids     []flooding.ID
	links   map[link][]any
	propose ProposeFunc
	// rounds after which the nodes stop proposing
	maxRounds flooding.Round

	logger logging.Logger
	// the destination of the logger
	log strings.Builder
}

// New creates a fully connected network of processes with the given IDs.
// Every process proposes the value returned by propose whenever it is asked for a proposal,
// until it reaches maxRounds.
func New(seed int64, propose ProposeFunc, maxRounds flooding.Round, ids ...flooding.ID) *Network {
	n := &Network{
		rnd:       rand.New(rand.NewSource(seed)),
		nodes:     make(map[flooding.ID]*Node),
		ids:       slices.Sorted(slices.Values(ids)),
		links:     make(map[link][]any),
		propose:   propose,
		maxRounds: maxRounds,
	}
	n.logger = logging.NewWithDest(&n.log, "network")
	for _, id := range n.ids {
		n.nodes[id] = newNode(n, id)
	}
	return n
}

// Node returns the process with the given ID.
func (n *Network) Node(id flooding.ID) *Node {
	return n.nodes[id]
}

// Nodes returns all processes, ordered by ID.
func (n *Network) Nodes() []*Node {
	nodes := make([]*Node, 0, len(n.ids))
	for _, id := range n.ids {
		nodes = append(nodes, n.nodes[id])
	}
	return nodes
}

// Log returns everything logged by the network and its processes.
func (n *Network) Log() string {
	return n.log.String()
}

// Start asks every process for its first proposal.
func (n *Network) Start() {
	for _, node := range n.Nodes() {
		if node.crashed {
			continue
		}
		node.engine.Start()
		node.drain()
	}
}

// Crash stops the process. Messages it has already sent are still delivered;
// after them, each of its peers observes the loss of the connection.
func (n *Network) Crash(id flooding.ID) {
	node := n.nodes[id]
	if node.crashed {
		return
	}
	n.logger.Infof("crash %d", id)
	node.crashed = true
	for _, other := range n.ids {
		if other == id {
			continue
		}
		delete(n.links, link{from: other, to: id})
		l := link{from: id, to: other}
		n.links[l] = append(n.links[l], connectionLost{})
	}
}

// Cut breaks the connection between a and b. Messages in transit between them are lost,
// and both processes observe the loss of the connection.
func (n *Network) Cut(a, b flooding.ID) {
	n.logger.Infof("cut %d-%d", a, b)
	for _, l := range []link{{from: a, to: b}, {from: b, to: a}} {
		n.links[l] = []any{connectionLost{}}
	}
	n.nodes[a].cut[b] = true
	n.nodes[b].cut[a] = true
}

// Step delivers one message. It returns false if no messages are pending.
func (n *Network) Step() bool {
	pending := make([]link, 0, len(n.links))
	for l, q := range n.links {
		if len(q) > 0 {
			pending = append(pending, l)
		}
	}
	if len(pending) == 0 {
		return false
	}
	slices.SortFunc(pending, func(a, b link) int {
		return cmp.Or(cmp.Compare(a.from, b.from), cmp.Compare(a.to, b.to))
	})
	l := pending[n.rnd.Intn(len(pending))]
	msg := n.links[l][0]
	n.links[l] = n.links[l][1:]

	receiver := n.nodes[l.to]
	if receiver.crashed {
		return true
	}
	if _, ok := msg.(connectionLost); ok {
		n.logger.Debugf("%v: connection lost", l)
		receiver.eventLoop.AddEvent(flooding.PeerCrashEvent{ID: l.from})
	} else {
		n.logger.Debugf("%v: %v", l, msg)
		receiver.eventLoop.AddEvent(msg)
	}
	receiver.drain()
	return true
}

// Run delivers messages until none are pending or maxSteps messages have been delivered.
// It returns the number of messages delivered.
func (n *Network) Run(maxSteps int) int {
	steps := 0
	for steps < maxSteps && n.Step() {
		steps++
	}
	return steps
}

func (n *Network) send(from flooding.ID, msg flooding.Message) {
	sender := n.nodes[from]
	for _, to := range n.ids {
		if to == from || n.nodes[to].crashed || sender.cut[to] {
			continue
		}
		l := link{from: from, to: to}
		n.links[l] = append(n.links[l], msg)
	}
}

// Node is a process in the simulated network.
type Node struct {
	network   *Network
	id        flooding.ID
	eventLoop *eventloop.EventLoop
	engine    *consensus.Engine
	crashed   bool
	cut       map[flooding.ID]bool
	decisions map[flooding.Round]flooding.Value
}

func newNode(n *Network, id flooding.ID) *Node {
	node := &Node{
		network:   n,
		id:        id,
		cut:       make(map[flooding.ID]bool),
		decisions: make(map[flooding.Round]flooding.Value),
	}
	logger := logging.NewWithDest(&n.log, fmt.Sprintf("p%d", id))
	node.eventLoop = eventloop.New(logger, 100)
	node.engine = consensus.New(node.eventLoop, logger, (*nodeSender)(node), id, n.ids)

	eventloop.Register(node.eventLoop, func(event flooding.DecideEvent) {
		node.decisions[event.Round] = event.Value
	})
	eventloop.Register(node.eventLoop, func(event flooding.NeedProposalEvent) {
		if n.propose == nil || event.Round >= n.maxRounds {
			return
		}
		node.eventLoop.AddEvent(flooding.ProposeEvent{
			Round: event.Round,
			Value: n.propose(id, event.Round),
		})
	})
	return node
}

// ID returns the ID of the process.
func (node *Node) ID() flooding.ID {
	return node.id
}

// Engine returns the consensus engine of the process.
func (node *Node) Engine() *consensus.Engine {
	return node.engine
}

// Crashed returns true if the process has crashed.
func (node *Node) Crashed() bool {
	return node.crashed
}

// Decisions returns the decisions made or adopted by the process.
func (node *Node) Decisions() map[flooding.Round]flooding.Value {
	return node.decisions
}

// Propose asks the process to propose value in its current round.
func (node *Node) Propose(value flooding.Value) {
	node.eventLoop.AddEvent(flooding.ProposeEvent{Round: node.engine.CurrentRound(), Value: value})
	node.drain()
}

// drain processes every queued event of the process.
func (node *Node) drain() {
	for node.eventLoop.Tick(context.Background()) { //revive:disable-line:empty-block
	}
}

type nodeSender Node

func (s *nodeSender) Broadcast(msg flooding.Message) {
	if s.crashed {
		return
	}
	s.network.send(s.id, msg)
}

var _ consensus.Broadcaster = (*nodeSender)(nil)
