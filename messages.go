package flooding

import "fmt"

// Message is implemented by the messages that can be sent between processes:
// JoinMsg, PeerListMsg, ProposalMsg and DecisionMsg.
type Message interface {
	isMessage()
}

// JoinMsg is sent by a process to the rendezvous service to ask for the current members,
// and as the first message on every peer connection to identify the sender.
type JoinMsg struct {
	ID   ID     // The ID of the joining process.
	Addr string // The address on which the process accepts peer connections.
}

func (JoinMsg) isMessage() {}

func (j JoinMsg) String() string {
	return fmt.Sprintf("Join{ID: %d, Addr: %s}", j.ID, j.Addr)
}

// PeerListMsg is returned by the rendezvous service and lists the processes a joining process should connect to.
type PeerListMsg struct {
	Peers []PeerInfo
}

func (PeerListMsg) isMessage() {}

func (p PeerListMsg) String() string {
	return fmt.Sprintf("PeerList%v", p.Peers)
}

// ProposalMsg carries a snapshot of the sender's proposal set, tagged with the sender's round.
type ProposalMsg struct {
	ID     ID // The ID of the process that sent the message. Set by the receiving transport.
	Round  Round
	Values []Value
}

func (ProposalMsg) isMessage() {}

func (p ProposalMsg) String() string {
	return fmt.Sprintf("Proposal{ID: %d, Round: %d, Values: %v}", p.ID, p.Round, p.Values)
}

// DecisionMsg is flooded when a process decides a value for a round.
type DecisionMsg struct {
	ID    ID // The ID of the process that sent the message. Set by the receiving transport.
	Round Round
	Value Value
}

func (DecisionMsg) isMessage() {}

func (d DecisionMsg) String() string {
	return fmt.Sprintf("Decision{ID: %d, Round: %d, Value: %q}", d.ID, d.Round, d.Value)
}
