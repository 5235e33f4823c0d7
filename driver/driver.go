// Package driver feeds local input to the consensus engine and reports its decisions.
//
// The engine raises a NeedProposalEvent whenever its current round waits for a local proposal.
// The driver then asks its Source for a value and sends it back as a ProposeEvent for that round.
// If the round ends before the value is available, the request is abandoned and the driver waits
// for the next NeedProposalEvent, so at most one value is proposed per round.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/relab/flooding"
	"github.com/relab/flooding/core/eventloop"
	"github.com/relab/flooding/core/logging"
)

// Driver connects a Source to the event loop of an engine.
type Driver struct {
	eventLoop *eventloop.EventLoop
	logger    logging.Logger
	source    Source
	out       *syncWriter
	maxRounds flooding.Round

	// latest round the engine has entered
	round atomic.Uint64
	need  chan flooding.Round

	doneOnce sync.Once
	done     chan struct{}
}

// New returns a driver that proposes values from source and prints decisions to out.
// If maxRounds is positive, the driver stops once the engine has left round maxRounds-1.
func New(eventLoop *eventloop.EventLoop, logger logging.Logger, source Source, out io.Writer, maxRounds flooding.Round) *Driver {
	d := &Driver{
		eventLoop: eventLoop,
		logger:    logger,
		source:    source,
		out:       &syncWriter{w: out},
		maxRounds: maxRounds,
		need:      make(chan flooding.Round, 1),
		done:      make(chan struct{}),
	}

	eventloop.Register(eventLoop, func(event flooding.NeedProposalEvent) {
		if d.finished(event.Round) {
			return
		}
		// only the latest request matters
		select {
		case <-d.need:
		default:
		}
		d.need <- event.Round
	}, eventloop.UnsafeRunInAddEvent())

	eventloop.Register(eventLoop, func(event flooding.RoundAdvanceEvent) {
		d.round.Store(uint64(event.Round))
		if d.finished(event.Round) {
			d.doneOnce.Do(func() { close(d.done) })
		}
	}, eventloop.UnsafeRunInAddEvent())

	eventloop.Register(eventLoop, func(event flooding.DecideEvent) {
		fmt.Fprintf(d.out, "Round %d decided: %s\n", event.Round, event.Value)
	})
	eventloop.Register(eventLoop, func(event flooding.RoundAdvanceEvent) {
		if !event.Decided {
			fmt.Fprintf(d.out, "Round %d ended without a decision\n", event.Ended)
		}
	})
	return d
}

func (d *Driver) finished(round flooding.Round) bool {
	return d.maxRounds > 0 && round >= d.maxRounds
}

// Done is closed when the engine has completed the configured number of rounds.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// Run proposes values until ctx is canceled, the configured number of rounds is complete,
// or the source fails. It returns nil if the rounds are complete or the source is exhausted.
func (d *Driver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case round := <-d.need:
			err := d.propose(ctx, round)
			if errors.Is(err, io.EOF) {
				d.logger.Info("Input ended")
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}

func (d *Driver) propose(ctx context.Context, round flooding.Round) error {
	roundCtx, cancel := d.eventLoop.RoundContext(round)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	// the engine may have moved on before the context was set up
	if flooding.Round(d.round.Load()) > round {
		return nil
	}

	value, err := d.source.Next(roundCtx, round)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if roundCtx.Err() != nil {
			d.logger.Debugf("Round %d ended before a value was available", round)
			return nil
		}
		return err
	}
	d.eventLoop.AddEvent(flooding.ProposeEvent{Round: round, Value: value})
	return nil
}

// syncWriter serializes writes from the event loop and the driver.
type syncWriter struct {
	mut sync.Mutex
	w   io.Writer
}

func (sw *syncWriter) Write(p []byte) (int, error) {
	sw.mut.Lock()
	defer sw.mut.Unlock()
	return sw.w.Write(p)
}
