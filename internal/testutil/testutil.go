package testutil

import (
	"net"
	"testing"

	"github.com/relab/flooding"
	"github.com/relab/flooding/core/eventloop"
)

// CreateTCPListener creates a net.Listener on a random port.
func CreateTCPListener(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	return lis
}

// Events records the output events of an engine.
// Its handlers run as part of AddEvent, so it sees the events even if the event loop is not running.
type Events struct {
	Decisions    []flooding.DecideEvent
	Advances     []flooding.RoundAdvanceEvent
	NeedProposal []flooding.NeedProposalEvent
}

// RecordEvents registers handlers on el that record the engine's output events.
func RecordEvents(el *eventloop.EventLoop) *Events {
	events := &Events{}
	eventloop.Register(el, func(event flooding.DecideEvent) {
		events.Decisions = append(events.Decisions, event)
	}, eventloop.UnsafeRunInAddEvent())
	eventloop.Register(el, func(event flooding.RoundAdvanceEvent) {
		events.Advances = append(events.Advances, event)
	}, eventloop.UnsafeRunInAddEvent())
	eventloop.Register(el, func(event flooding.NeedProposalEvent) {
		events.NeedProposal = append(events.NeedProposal, event)
	}, eventloop.UnsafeRunInAddEvent())
	return events
}
