// Package consensus implements the round state machine of the flooding consensus protocol.
//
// Every process keeps a grow-only set of all values it has observed. In each round, a process
// contributes its set once (a proposal) and merges the sets it receives from its peers. A round is
// complete when the process has proposed and has heard from every peer that was connected when the
// round started, minus those that crashed. If no crash was observed during the round, the process
// decides the greatest value of its set and floods the decision. In either case it then advances to
// the next round. A process that receives a decision adopts it, floods it again, and, if the decision
// is for its current round, advances immediately.
//
// The Engine is not safe for concurrent use. It registers its handlers on an event loop, and all
// calls to its methods must happen on the event loop's goroutine (or, in tests, on a single goroutine).
package consensus

import (
	"fmt"
	"slices"

	"github.com/relab/flooding"
	"github.com/relab/flooding/core/eventloop"
	"github.com/relab/flooding/core/logging"
)

// Broadcaster sends messages to every live peer.
// Broadcast must not block on the network; send failures are reported as PeerCrashEvents.
type Broadcaster interface {
	Broadcast(msg flooding.Message)
}

// Engine runs the flooding consensus protocol for a single process.
type Engine struct {
	eventLoop *eventloop.EventLoop
	logger    logging.Logger
	sender    Broadcaster
	opts      options

	id        flooding.ID
	current   flooding.Round
	proposals *ProposalSet
	rounds    *RoundTracker
	members   *MembershipView
}

// New returns an engine for the process with the given id.
// The peers are the processes connected at startup; they form the view of round 0.
func New(
	eventLoop *eventloop.EventLoop,
	logger logging.Logger,
	sender Broadcaster,
	id flooding.ID,
	peers []flooding.ID,
	opts ...Option,
) *Engine {
	e := &Engine{
		eventLoop: eventLoop,
		logger:    logger,
		sender:    sender,
		id:        id,
		proposals: NewProposalSet(),
		rounds:    NewRoundTracker(),
	}
	for _, opt := range opts {
		opt(&e.opts)
	}
	e.members = NewMembershipView(slices.DeleteFunc(slices.Clone(peers), func(peer flooding.ID) bool {
		return peer == id
	})...)
	e.rounds.Start(0, e.members.Live())

	eventloop.Register(eventLoop, func(event flooding.ProposeEvent) {
		if event.Round != e.current {
			e.logger.Infof("Dropping value %q entered for round %d; current round is %d", event.Value, event.Round, e.current)
			return
		}
		e.Propose(event.Value)
	})
	eventloop.Register(eventLoop, func(msg flooding.ProposalMsg) {
		e.OnProposal(msg.ID, msg.Round, msg.Values)
	})
	eventloop.Register(eventLoop, func(msg flooding.DecisionMsg) {
		e.OnDecision(msg.Round, msg.Value)
	})
	eventloop.Register(eventLoop, func(event flooding.PeerConnectedEvent) {
		e.OnPeerConnected(event.ID)
	})
	eventloop.Register(eventLoop, func(event flooding.PeerCrashEvent) {
		e.OnPeerCrash(event.ID)
	})
	return e
}

// Start announces that round 0 is waiting for a local proposal.
func (e *Engine) Start() {
	e.logger.Infof("Starting round 0 with peers %v", e.LivePeers())
	e.eventLoop.AddEvent(flooding.NeedProposalEvent{Round: e.current})
}

// Propose merges value into the proposal set and floods the set for the current round.
func (e *Engine) Propose(value flooding.Value) {
	e.proposals.Merge(value)
	e.rounds.RecordLocalProposal(e.current)
	e.logger.Debugf("Proposing %q in round %d", value, e.current)
	e.broadcastProposal()
	e.evaluateTermination(e.current)
}

// OnProposal handles a proposal from peer for the given round.
// The values are merged whatever the round is, but only a proposal for the current round can complete it.
func (e *Engine) OnProposal(peer flooding.ID, round flooding.Round, values []flooding.Value) {
	added := e.proposals.Merge(values...)
	if e.rounds.Stale(round) {
		e.logger.Debugf("Proposal from %d for discarded round %d", peer, round)
		return
	}
	e.rounds.RecordPeerProposal(round, peer)
	e.logger.Debugf("Proposal from %d for round %d (%d new values)", peer, round, added)
	if round == e.current {
		e.evaluateTermination(round)
	}
}

// OnDecision handles a decision flooded by a peer.
// Decisions for rounds that are already decided are ignored.
func (e *Engine) OnDecision(round flooding.Round, value flooding.Value) {
	e.proposals.Merge(value)
	if e.rounds.Stale(round) {
		return
	}
	if !e.decide(round, value, true) {
		return
	}
	if round == e.current {
		e.advanceRound()
	}
}

// OnPeerConnected adds peer to the live peers. It is counted from the next round on.
func (e *Engine) OnPeerConnected(peer flooding.ID) {
	if peer == e.id {
		return
	}
	if e.members.Connect(peer) {
		e.logger.Infof("Peer %d connected in round %d", peer, e.current)
	}
}

// OnPeerCrash handles the failure of the connection to peer.
// The current round can no longer be decided, but it can still complete without the peer.
func (e *Engine) OnPeerCrash(peer flooding.ID) {
	if !e.members.Crash(peer) {
		return
	}
	e.logger.Infof("Peer %d crashed in round %d", peer, e.current)
	e.rounds.RecordCrash(e.current, peer)
	e.evaluateTermination(e.current)
}

func (e *Engine) evaluateTermination(round flooding.Round) {
	if round != e.current || !e.rounds.IsComplete(round) {
		return
	}
	if !e.rounds.Crashed(round) {
		value, err := e.proposals.Max()
		if err != nil {
			e.logger.DPanicf("Round %d completed: %v", round, err)
			panic(fmt.Sprintf("consensus: round %d completed with an empty proposal set", round))
		}
		e.decide(round, value, false)
	}
	e.advanceRound()
}

// decide records the decision for round and floods it.
// It returns false if the round was already decided.
func (e *Engine) decide(round flooding.Round, value flooding.Value, remote bool) bool {
	if !e.rounds.RecordDecision(round, value) {
		return false
	}
	if remote {
		e.logger.Infof("Adopted decision %q for round %d", value, round)
	} else {
		e.logger.Infof("Decided %q for round %d", value, round)
	}
	e.eventLoop.AddEvent(flooding.DecideEvent{Round: round, Value: value, Remote: remote})
	e.sender.Broadcast(flooding.DecisionMsg{ID: e.id, Round: round, Value: value})
	return true
}

func (e *Engine) advanceRound() {
	ended := e.current
	crashed := e.rounds.Crashed(ended)
	_, decided := e.rounds.Decision(ended)

	e.current++
	e.rounds.Start(e.current, e.members.Live())

	// a process that was interrupted by a crash carries its knowledge into the next round on its own
	if crashed {
		e.rounds.RecordLocalProposal(e.current)
		e.broadcastProposal()
	}

	e.logger.Infof("Advanced to round %d (round %d decided: %t, crashed: %t)", e.current, ended, decided, crashed)
	e.eventLoop.AddEvent(flooding.RoundAdvanceEvent{
		Ended:    ended,
		Round:    e.current,
		Decided:  decided,
		Crashed:  crashed,
		Proposed: crashed,
	})
	e.prune()

	// a faster peer already decided the new round; nothing is left to wait for
	if value, ok := e.rounds.Decision(e.current); ok {
		e.logger.Infof("Round %d was already decided (%q)", e.current, value)
		e.advanceRound()
		return
	}
	if !crashed {
		e.eventLoop.AddEvent(flooding.NeedProposalEvent{Round: e.current})
	}
	e.evaluateTermination(e.current)
}

func (e *Engine) broadcastProposal() {
	e.sender.Broadcast(flooding.ProposalMsg{
		ID:     e.id,
		Round:  e.current,
		Values: e.proposals.Values(),
	})
}

func (e *Engine) prune() {
	if e.opts.retainRounds == 0 || e.current <= e.opts.retainRounds {
		return
	}
	e.rounds.Prune(e.current - e.opts.retainRounds)
}

// ID returns the ID of the process.
func (e *Engine) ID() flooding.ID {
	return e.id
}

// CurrentRound returns the round the process is in.
func (e *Engine) CurrentRound() flooding.Round {
	return e.current
}

// Decision returns the decision for the given round, if any.
func (e *Engine) Decision(round flooding.Round) (flooding.Value, bool) {
	return e.rounds.Decision(round)
}

// Proposed returns true if the process has proposed in the current round.
func (e *Engine) Proposed() bool {
	return e.rounds.Proposed(e.current)
}

// Round returns a snapshot of the given round.
func (e *Engine) Round(round flooding.Round) (RoundInfo, bool) {
	return e.rounds.Info(round)
}

// Values returns every value the process has observed, in ascending order.
func (e *Engine) Values() []flooding.Value {
	return e.proposals.Values()
}

// LivePeers returns the peers the process is connected to.
func (e *Engine) LivePeers() []flooding.ID {
	live := e.members.Live()
	return live.IDs()
}

// Status returns a snapshot of the engine's state.
func (e *Engine) Status() Status {
	s := Status{
		ID:            e.id,
		Round:         e.current,
		Proposed:      e.Proposed(),
		LivePeers:     e.LivePeers(),
		Values:        e.proposals.Len(),
		TrackedRounds: e.rounds.Len(),
		Decided:       e.rounds.Decisions(),
	}
	if info, ok := e.rounds.Info(e.current); ok {
		s.HeardFrom = info.HeardFrom
		s.Crashed = info.Crashed
	}
	return s
}

// Status is a snapshot of an engine.
type Status struct {
	ID            flooding.ID    `json:"id"`
	Round         flooding.Round `json:"round"`
	Proposed      bool           `json:"proposed"`
	Crashed       bool           `json:"crashed"`
	HeardFrom     []flooding.ID  `json:"heard_from"`
	LivePeers     []flooding.ID  `json:"live_peers"`
	Values        int            `json:"values"`
	TrackedRounds int            `json:"tracked_rounds"`

	// Decided holds the decisions of the rounds whose state is still kept.
	Decided map[flooding.Round]flooding.Value `json:"decided"`
}
