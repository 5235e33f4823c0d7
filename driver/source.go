package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/relab/flooding"
	"golang.org/x/time/rate"
)

// Source produces the value a process proposes in a round.
// Next must return when ctx is canceled; a value it has not returned yet must not be lost.
type Source interface {
	Next(ctx context.Context, round flooding.Round) (flooding.Value, error)
}

// LineSource reads one value per line, prompting for each round.
// Blank lines are skipped.
type LineSource struct {
	prompt io.Writer
	lines  chan string
	err    error
}

// NewLineSource returns a source reading lines from r. Prompts are written to prompt.
func NewLineSource(r io.Reader, prompt io.Writer) *LineSource {
	s := &LineSource{
		prompt: prompt,
		lines:  make(chan string),
	}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			s.lines <- line
		}
		s.err = scanner.Err()
		close(s.lines)
	}()
	return s
}

// Next waits for the next line of input.
// It returns io.EOF when the input has ended.
func (s *LineSource) Next(ctx context.Context, round flooding.Round) (flooding.Value, error) {
	fmt.Fprintf(s.prompt, "** Waiting for round %d proposal... **\n", round)
	select {
	case line, ok := <-s.lines:
		if !ok {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		return flooding.Value(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AutoSource proposes "<id>-<round>" in every round, at most at the rate of its limiter.
type AutoSource struct {
	id      flooding.ID
	limiter *rate.Limiter
}

// NewAutoSource returns a source that proposes at most perSecond values per second.
// If perSecond is 0, the source is not throttled.
func NewAutoSource(id flooding.ID, perSecond float64) *AutoSource {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &AutoSource{
		id:      id,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Next waits for the limiter and returns the value for the round.
func (s *AutoSource) Next(ctx context.Context, round flooding.Round) (flooding.Value, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return flooding.Value(fmt.Sprintf("%d-%d", s.id, round)), nil
}
