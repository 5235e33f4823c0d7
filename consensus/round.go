package consensus

import (
	"fmt"

	"github.com/relab/flooding"
)

// RoundState holds the bookkeeping of a single round.
// A round is open until it is decided or the process advances past it without a decision (abandoned).
type RoundState struct {
	round   flooding.Round
	started bool

	view         PeerSet // peers counted for termination, fixed when the round starts
	crashedPeers PeerSet // peers whose connection failed during the round
	heardFrom    PeerSet // peers whose proposal for this round has been merged

	proposed bool
	crashed  bool

	decided  bool
	decision flooding.Value
}

// liveView returns the initial view without the peers that crashed during the round.
func (rs *RoundState) liveView() PeerSet {
	return rs.view.Minus(&rs.crashedPeers)
}

// RoundInfo is a read-only snapshot of a RoundState.
type RoundInfo struct {
	Round        flooding.Round
	Started      bool
	View         []flooding.ID
	CrashedPeers []flooding.ID
	HeardFrom    []flooding.ID
	Proposed     bool
	Crashed      bool
	Decided      bool
	Decision     flooding.Value
}

func (ri RoundInfo) String() string {
	return fmt.Sprintf(
		"Round %d{view: %v, crashed peers: %v, heard from: %v, proposed: %t, crashed: %t, decided: %t (%q)}",
		ri.Round, ri.View, ri.CrashedPeers, ri.HeardFrom, ri.Proposed, ri.Crashed, ri.Decided, ri.Decision,
	)
}

// RoundTracker keeps the state of every round a process has seen.
// Rounds are created lazily the first time they are referenced.
type RoundTracker struct {
	rounds map[flooding.Round]*RoundState
	// rounds below floor have been discarded
	floor flooding.Round
}

// NewRoundTracker returns an empty RoundTracker.
func NewRoundTracker() *RoundTracker {
	return &RoundTracker{rounds: make(map[flooding.Round]*RoundState)}
}

func (rt *RoundTracker) get(round flooding.Round) *RoundState {
	rs, ok := rt.rounds[round]
	if !ok {
		rs = &RoundState{round: round}
		rt.rounds[round] = rs
	}
	return rs
}

// Start fixes the initial view of the round. The view is copied.
func (rt *RoundTracker) Start(round flooding.Round, view PeerSet) {
	rs := rt.get(round)
	rs.view = view.Clone()
	rs.started = true
}

// RecordLocalProposal marks that this process has contributed its proposal set to the round.
func (rt *RoundTracker) RecordLocalProposal(round flooding.Round) {
	rt.get(round).proposed = true
}

// RecordPeerProposal marks that the proposal of peer for the round has been merged.
// Peers outside the round's initial view are recorded, but do not count towards termination.
func (rt *RoundTracker) RecordPeerProposal(round flooding.Round, peer flooding.ID) {
	rt.get(round).heardFrom.Add(peer)
}

// RecordCrash marks that a connection failed during the round and removes peer from the round's view.
func (rt *RoundTracker) RecordCrash(round flooding.Round, peer flooding.ID) {
	rs := rt.get(round)
	rs.crashed = true
	rs.crashedPeers.Add(peer)
}

// RecordDecision sets the decision of the round.
// It returns false, and leaves the round untouched, if the round was already decided.
func (rt *RoundTracker) RecordDecision(round flooding.Round, value flooding.Value) bool {
	rs := rt.get(round)
	if rs.decided {
		return false
	}
	rs.decided = true
	rs.decision = value
	return true
}

// IsComplete returns true if this process has proposed in the round
// and has heard from every peer of the round's view that has not crashed.
// A round that has not started is never complete.
func (rt *RoundTracker) IsComplete(round flooding.Round) bool {
	rs, ok := rt.rounds[round]
	if !ok || !rs.started || !rs.proposed {
		return false
	}
	live := rs.liveView()
	return rs.heardFrom.ContainsAll(&live)
}

// Crashed returns true if a crash was recorded for the round.
func (rt *RoundTracker) Crashed(round flooding.Round) bool {
	rs, ok := rt.rounds[round]
	return ok && rs.crashed
}

// Proposed returns true if this process has proposed in the round.
func (rt *RoundTracker) Proposed(round flooding.Round) bool {
	rs, ok := rt.rounds[round]
	return ok && rs.proposed
}

// Decision returns the decision of the round, if any.
func (rt *RoundTracker) Decision(round flooding.Round) (flooding.Value, bool) {
	rs, ok := rt.rounds[round]
	if !ok || !rs.decided {
		return "", false
	}
	return rs.decision, true
}

// Stale returns true if the round has been discarded by Prune.
func (rt *RoundTracker) Stale(round flooding.Round) bool {
	return round < rt.floor
}

// Prune discards the state of all rounds before the given round.
func (rt *RoundTracker) Prune(below flooding.Round) {
	if below <= rt.floor {
		return
	}
	for round := range rt.rounds {
		if round < below {
			delete(rt.rounds, round)
		}
	}
	rt.floor = below
}

// Decisions returns the decisions of the rounds being tracked.
func (rt *RoundTracker) Decisions() map[flooding.Round]flooding.Value {
	decisions := make(map[flooding.Round]flooding.Value)
	for round, rs := range rt.rounds {
		if rs.decided {
			decisions[round] = rs.decision
		}
	}
	return decisions
}

// Len returns the number of rounds being tracked.
func (rt *RoundTracker) Len() int {
	return len(rt.rounds)
}

// Info returns a snapshot of the round.
func (rt *RoundTracker) Info(round flooding.Round) (RoundInfo, bool) {
	rs, ok := rt.rounds[round]
	if !ok {
		return RoundInfo{}, false
	}
	return RoundInfo{
		Round:        rs.round,
		Started:      rs.started,
		View:         rs.view.IDs(),
		CrashedPeers: rs.crashedPeers.IDs(),
		HeardFrom:    rs.heardFrom.IDs(),
		Proposed:     rs.proposed,
		Crashed:      rs.crashed,
		Decided:      rs.decided,
		Decision:     rs.decision,
	}, true
}
