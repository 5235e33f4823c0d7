package consensus_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/relab/flooding"
	"github.com/relab/flooding/consensus"
	"github.com/relab/flooding/core/eventloop"
	"github.com/relab/flooding/core/logging"
	"github.com/relab/flooding/internal/mocks"
	"github.com/relab/flooding/internal/testutil"
)

func newEngine(t *testing.T, sender consensus.Broadcaster, id flooding.ID, peers []flooding.ID, opts ...consensus.Option) (*consensus.Engine, *testutil.Events) {
	t.Helper()
	logger := logging.New("test")
	el := eventloop.New(logger, 100)
	events := testutil.RecordEvents(el)
	return consensus.New(el, logger, sender, id, peers, opts...), events
}

func values(vs ...string) []flooding.Value {
	values := make([]flooding.Value, len(vs))
	for i, v := range vs {
		values[i] = flooding.Value(v)
	}
	return values
}

func checkDecision(t *testing.T, e *consensus.Engine, round flooding.Round, want flooding.Value) {
	t.Helper()
	got, ok := e.Decision(round)
	if !ok {
		t.Fatalf("round %d: no decision, want %q", round, want)
	}
	if got != want {
		t.Fatalf("round %d: decided %q, want %q", round, got, want)
	}
}

func checkNoDecision(t *testing.T, e *consensus.Engine, round flooding.Round) {
	t.Helper()
	if got, ok := e.Decision(round); ok {
		t.Fatalf("round %d: unexpected decision %q", round, got)
	}
}

func checkRound(t *testing.T, e *consensus.Engine, want flooding.Round) {
	t.Helper()
	if got := e.CurrentRound(); got != want {
		t.Fatalf("current round is %d, want %d", got, want)
	}
}

// TestHappyPath checks that P1 decides the maximum of the values proposed by itself, P2 and P3.
func TestHappyPath(t *testing.T) {
	sender := testutil.NewMockSender()
	e, events := newEngine(t, sender, 1, []flooding.ID{2, 3})

	e.Propose("b")
	e.OnProposal(2, 0, values("a"))
	checkRound(t, e, 0)
	e.OnProposal(3, 0, values("c"))

	checkDecision(t, e, 0, "c")
	checkRound(t, e, 1)
	if e.Proposed() {
		t.Error("round 1 should wait for a local proposal")
	}
	if len(events.Decisions) != 1 || events.Decisions[0].Remote {
		t.Errorf("expected one local DecideEvent, got %v", events.Decisions)
	}
	if n := len(events.NeedProposal); n != 1 || events.NeedProposal[0].Round != 1 {
		t.Errorf("expected a NeedProposalEvent for round 1, got %v", events.NeedProposal)
	}
	decisions := sender.Decisions()
	if len(decisions) != 1 || decisions[0] != (flooding.DecisionMsg{ID: 1, Round: 0, Value: "c"}) {
		t.Errorf("expected the decision to be flooded once, got %v", decisions)
	}
}

// TestProposalFlooded checks the exact messages broadcast while proposing.
func TestProposalFlooded(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockBroadcaster(ctrl)
	e, _ := newEngine(t, sender, 1, []flooding.ID{2})

	gomock.InOrder(
		sender.EXPECT().Broadcast(flooding.ProposalMsg{ID: 1, Round: 0, Values: values("b")}),
		sender.EXPECT().Broadcast(flooding.DecisionMsg{ID: 1, Round: 0, Value: "d"}),
	)

	e.Propose("b")
	e.OnProposal(2, 0, values("a", "d"))

	checkDecision(t, e, 0, "d")
}

// TestMidRoundCrash checks that a crash during a round suppresses the decision,
// and that the next round is seeded with the accumulated proposal set.
func TestMidRoundCrash(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockBroadcaster(ctrl)
	e, events := newEngine(t, sender, 1, []flooding.ID{2, 3})

	gomock.InOrder(
		sender.EXPECT().Broadcast(flooding.ProposalMsg{ID: 1, Round: 0, Values: values("b")}),
		sender.EXPECT().Broadcast(flooding.ProposalMsg{ID: 1, Round: 1, Values: values("a", "b")}),
	)

	e.Propose("b")
	e.OnProposal(2, 0, values("a"))
	checkRound(t, e, 0)

	// P3's proposal never arrives
	e.OnPeerCrash(3)

	checkNoDecision(t, e, 0)
	checkRound(t, e, 1)
	if !e.Proposed() {
		t.Error("round 1 should be seeded with the proposal set")
	}
	info, ok := e.Round(0)
	if !ok {
		t.Fatal("round 0 is not tracked")
	}
	if !info.Crashed || len(info.CrashedPeers) != 1 || info.CrashedPeers[0] != 3 {
		t.Errorf("unexpected state of round 0: %v", info)
	}
	next, _ := e.Round(1)
	if len(next.View) != 1 || next.View[0] != 2 {
		t.Errorf("view of round 1 is %v, want [2]", next.View)
	}
	if len(events.Advances) != 1 || !events.Advances[0].Crashed || !events.Advances[0].Proposed {
		t.Errorf("unexpected RoundAdvanceEvents: %v", events.Advances)
	}
	if len(events.NeedProposal) != 0 {
		t.Errorf("a seeded round should not ask for a proposal, got %v", events.NeedProposal)
	}
}

// TestCrashBeforeCompletion checks that a crash alone does not complete a round
// while a live peer has not been heard from.
func TestCrashBeforeCompletion(t *testing.T) {
	sender := testutil.NewMockSender()
	e, _ := newEngine(t, sender, 1, []flooding.ID{2, 3})

	e.Propose("b")
	e.OnPeerCrash(3)
	checkRound(t, e, 0)

	e.OnProposal(2, 0, values("a"))
	checkNoDecision(t, e, 0)
	checkRound(t, e, 1)
}

// TestCrashOfLastMissingPeer checks that a crash can complete the round when it removes the only peer not heard from.
func TestCrashOfLastMissingPeer(t *testing.T) {
	sender := testutil.NewMockSender()
	e, _ := newEngine(t, sender, 1, []flooding.ID{2, 3})

	e.Propose("b")
	e.OnProposal(2, 0, values("a"))
	e.OnPeerCrash(3)

	checkNoDecision(t, e, 0)
	checkRound(t, e, 1)

	// the crashed peer is gone for good
	e.OnPeerConnected(3)
	if peers := e.LivePeers(); len(peers) != 1 || peers[0] != 2 {
		t.Errorf("live peers are %v, want [2]", peers)
	}
}

// TestLateDecision checks that a decision received before local completion is adopted as is,
// flooded again, and ends the round.
func TestLateDecision(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockBroadcaster(ctrl)
	e, events := newEngine(t, sender, 1, []flooding.ID{2, 3})

	gomock.InOrder(
		sender.EXPECT().Broadcast(flooding.ProposalMsg{ID: 1, Round: 0, Values: values("z")}),
		sender.EXPECT().Broadcast(flooding.DecisionMsg{ID: 1, Round: 0, Value: "c"}),
	)

	e.Propose("z")
	e.OnDecision(0, "c")

	// the decision is adopted even though the local maximum is "z"
	checkDecision(t, e, 0, "c")
	checkRound(t, e, 1)
	found := false
	for _, v := range e.Values() {
		if v == "c" {
			found = true
		}
	}
	if !found {
		t.Error("decided value was not merged into the proposal set")
	}
	if len(events.Decisions) != 1 || !events.Decisions[0].Remote {
		t.Errorf("expected one remote DecideEvent, got %v", events.Decisions)
	}
}

// TestDuplicateDecision checks that a second decision for the same round is ignored.
func TestDuplicateDecision(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockBroadcaster(ctrl)
	e, events := newEngine(t, sender, 1, []flooding.ID{2, 3})

	sender.EXPECT().Broadcast(flooding.DecisionMsg{ID: 1, Round: 0, Value: "c"}).Times(1)

	e.OnDecision(0, "c")
	e.OnDecision(0, "c")
	e.OnDecision(0, "x")

	checkDecision(t, e, 0, "c")
	checkRound(t, e, 1)
	if len(events.Decisions) != 1 {
		t.Errorf("expected exactly one DecideEvent, got %v", events.Decisions)
	}
}

// TestNoPrematureDecision checks that a round is not complete before every live peer has been heard from,
// or before the process has proposed, even if all values received are identical.
func TestNoPrematureDecision(t *testing.T) {
	t.Run("MissingPeer", func(t *testing.T) {
		e, _ := newEngine(t, testutil.NewMockSender(), 1, []flooding.ID{2, 3})
		e.Propose("a")
		e.OnProposal(2, 0, values("a"))
		checkNoDecision(t, e, 0)
		checkRound(t, e, 0)
	})
	t.Run("NotProposed", func(t *testing.T) {
		e, _ := newEngine(t, testutil.NewMockSender(), 1, []flooding.ID{2, 3})
		e.OnProposal(2, 0, values("a"))
		e.OnProposal(3, 0, values("a"))
		checkNoDecision(t, e, 0)
		checkRound(t, e, 0)

		e.Propose("a")
		checkDecision(t, e, 0, "a")
	})
}

// TestLateJoinerNotCounted checks that a peer connecting during a round is only counted from the next round.
func TestLateJoinerNotCounted(t *testing.T) {
	e, _ := newEngine(t, testutil.NewMockSender(), 1, []flooding.ID{2})

	e.Propose("a")
	e.OnPeerConnected(4)
	e.OnProposal(4, 0, values("q"))
	checkRound(t, e, 0)

	e.OnProposal(2, 0, values("b"))
	// the late joiner's values were merged, so they take part in the decision
	checkDecision(t, e, 0, "q")

	info, _ := e.Round(1)
	if len(info.View) != 2 || info.View[0] != 2 || info.View[1] != 4 {
		t.Errorf("view of round 1 is %v, want [2 4]", info.View)
	}
}

// TestFutureProposal checks that a proposal for a later round is kept and counted once the process gets there.
func TestFutureProposal(t *testing.T) {
	e, _ := newEngine(t, testutil.NewMockSender(), 1, []flooding.ID{2})

	e.OnProposal(2, 1, values("y"))
	checkRound(t, e, 0)

	e.Propose("a")
	e.OnProposal(2, 0, values("b"))
	checkDecision(t, e, 0, "y")
	checkRound(t, e, 1)

	// the proposal of peer 2 for round 1 has already arrived
	e.Propose("c")
	checkDecision(t, e, 1, "y")
	checkRound(t, e, 2)
}

// TestFutureDecision checks that a decision for a later round is recorded without advancing,
// and that the round is skipped once the process reaches it.
func TestFutureDecision(t *testing.T) {
	e, events := newEngine(t, testutil.NewMockSender(), 1, []flooding.ID{2})

	e.OnDecision(1, "x")
	checkRound(t, e, 0)
	checkDecision(t, e, 1, "x")

	e.Propose("a")
	e.OnProposal(2, 0, values("b"))
	checkDecision(t, e, 0, "x")
	checkRound(t, e, 2)
	if len(events.Advances) != 2 {
		t.Errorf("expected two RoundAdvanceEvents, got %v", events.Advances)
	}
	// the skipped round never asks for a local proposal
	if n := len(events.NeedProposal); n != 1 || events.NeedProposal[0].Round != 2 {
		t.Errorf("expected a single NeedProposalEvent for round 2, got %v", events.NeedProposal)
	}
	if e.Proposed() {
		t.Error("round 2 should wait for a local proposal")
	}
}

// TestAlone checks that a process without peers decides its own value.
func TestAlone(t *testing.T) {
	e, _ := newEngine(t, testutil.NewMockSender(), 1, nil)
	e.Propose("solo")
	checkDecision(t, e, 0, "solo")
	checkRound(t, e, 1)
}

// TestProposeEvent checks that a value entered for a round that has ended is not proposed.
func TestProposeEvent(t *testing.T) {
	logger := logging.New("test")
	el := eventloop.New(logger, 10)
	sender := testutil.NewMockSender()
	e := consensus.New(el, logger, sender, 1, []flooding.ID{2})

	e.OnDecision(0, "c")
	checkRound(t, e, 1)
	sender.Reset()

	el.AddEvent(flooding.ProposeEvent{Round: 0, Value: "late"})
	el.AddEvent(flooding.ProposeEvent{Round: 1, Value: "ok"})
	for el.Tick(context.Background()) {
	}

	proposals := sender.Proposals()
	if len(proposals) != 1 || proposals[0].Round != 1 || len(proposals[0].Values) != 2 {
		t.Fatalf("unexpected proposals: %v", proposals)
	}
	for _, v := range proposals[0].Values {
		if v == "late" {
			t.Error("value entered for an earlier round was proposed")
		}
	}
}

// TestRetainRounds checks that old round state is discarded and inputs for discarded rounds are ignored.
func TestRetainRounds(t *testing.T) {
	e, _ := newEngine(t, testutil.NewMockSender(), 1, nil, consensus.WithRetainRounds(2))

	for range 5 {
		e.Propose("v")
	}
	checkRound(t, e, 5)

	if _, ok := e.Round(2); ok {
		t.Error("round 2 should have been discarded")
	}
	if _, ok := e.Round(3); !ok {
		t.Error("round 3 should be retained")
	}

	e.OnDecision(0, "w")
	checkRound(t, e, 5)
	checkNoDecision(t, e, 0)
	if status := e.Status(); status.TrackedRounds != 3 {
		t.Errorf("tracking %d rounds, want 3", status.TrackedRounds)
	}
}
