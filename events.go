package flooding

// ProposeEvent asks the consensus engine to propose a value.
// The value is only proposed if Round is still the engine's current round.
type ProposeEvent struct {
	Round Round
	Value Value
}

// PeerConnectedEvent is raised by the transport when a connection to a peer has been established.
type PeerConnectedEvent struct {
	ID ID
}

// PeerCrashEvent is raised by the transport when the connection to a peer fails.
// A crashed peer never comes back.
type PeerCrashEvent struct {
	ID ID
}

// DecideEvent is raised exactly once per decided round.
type DecideEvent struct {
	Round  Round
	Value  Value
	Remote bool // true if the decision was adopted from a DecisionMsg
}

// RoundAdvanceEvent is raised when the engine moves from round Ended to round Round.
type RoundAdvanceEvent struct {
	Ended    Round
	Round    Round
	Decided  bool // whether a decision is known for the ended round
	Crashed  bool // whether a crash was observed during the ended round
	Proposed bool // whether the new round was seeded with this process' proposal set
}

// NeedProposalEvent is raised when the current round is waiting for a local proposal.
type NeedProposalEvent struct {
	Round Round
}
