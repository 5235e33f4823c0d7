package driver_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relab/flooding"
	"github.com/relab/flooding/consensus"
	"github.com/relab/flooding/core/eventloop"
	"github.com/relab/flooding/core/logging"
	"github.com/relab/flooding/driver"
	"github.com/relab/flooding/internal/testutil"
)

// safeBuffer is a bytes.Buffer that can be read while the event loop writes to it.
type safeBuffer struct {
	mut sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mut.Lock()
	defer b.mut.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mut.Lock()
	defer b.mut.Unlock()
	return b.buf.String()
}

type setup struct {
	eventLoop *eventloop.EventLoop
	engine    *consensus.Engine
	out       *safeBuffer
	stop      func()
}

// start runs an engine for process 1 on its own event loop.
func start(t *testing.T, peers []flooding.ID) *setup {
	t.Helper()
	logger := logging.New("test")
	el := eventloop.New(logger, 100)
	s := &setup{
		eventLoop: el,
		engine:    consensus.New(el, logger, testutil.NewMockSender(), 1, peers),
		out:       &safeBuffer{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.stop = func() {
		cancel()
		<-done
	}
	go func() {
		el.Run(ctx)
		close(done)
	}()
	t.Cleanup(s.stop)
	return s
}

func waitFor(t *testing.T, out *safeBuffer, substr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), substr) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %q; output:\n%s", substr, out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAutoPropose(t *testing.T) {
	s := start(t, nil)
	d := driver.New(s.eventLoop, logging.New("driver"), driver.NewAutoSource(1, 0), s.out, 3)
	s.engine.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	s.stop()

	out := s.out.String()
	for _, want := range []string{"Round 0 decided: 1-0", "Round 1 decided: 1-1", "Round 2 decided: 1-2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Round 3 decided") {
		t.Errorf("proposed beyond the configured rounds:\n%s", out)
	}
}

func TestLineInput(t *testing.T) {
	s := start(t, nil)
	source := driver.NewLineSource(strings.NewReader("a\n\n  b  \n"), s.out)
	d := driver.New(s.eventLoop, logging.New("driver"), source, s.out, 0)
	s.engine.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	waitFor(t, s.out, "Round 1 decided: b")

	out := s.out.String()
	for _, want := range []string{
		"** Waiting for round 0 proposal... **",
		"Round 0 decided: a",
		"** Waiting for round 1 proposal... **",
		"** Waiting for round 2 proposal... **",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestRoundEndsWhileWaiting(t *testing.T) {
	s := start(t, []flooding.ID{2})
	input, w := io.Pipe()
	defer w.Close()
	source := driver.NewLineSource(input, s.out)
	d := driver.New(s.eventLoop, logging.New("driver"), source, s.out, 0)
	eventloop.Register(s.eventLoop, func(c check) { c.fn() })
	s.engine.Start()

	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() { errC <- d.Run(ctx) }()

	waitFor(t, s.out, "** Waiting for round 0 proposal... **")
	// peer 2 decides round 0 before any input is given
	s.eventLoop.AddEvent(flooding.DecisionMsg{ID: 2, Round: 0, Value: "x"})
	waitFor(t, s.out, "Round 0 decided: x")
	waitFor(t, s.out, "** Waiting for round 1 proposal... **")

	// the next line is proposed in round 1
	if _, err := io.WriteString(w, "y\n"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		done := make(chan bool)
		s.eventLoop.AddEvent(check{func() { done <- s.engine.Proposed() }})
		if <-done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the proposal of round 1")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-errC; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

// check runs a function on the event loop.
type check struct {
	fn func()
}
