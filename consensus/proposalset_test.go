package consensus

import (
	"errors"
	"slices"
	"testing"

	"github.com/relab/flooding"
)

func TestMaxOfEmptySet(t *testing.T) {
	s := NewProposalSet()
	if _, err := s.Max(); !errors.Is(err, ErrEmptySet) {
		t.Fatalf("expected ErrEmptySet, got %v", err)
	}
}

func TestMergeIdempotent(t *testing.T) {
	s := NewProposalSet("a", "b")
	if added := s.Merge("b", "a", "a"); added != 0 {
		t.Errorf("merging known values added %d values", added)
	}
	if added := s.Merge("c", "c"); added != 1 {
		t.Errorf("merging a new value twice added %d values", added)
	}
	if s.Len() != 3 {
		t.Errorf("set has %d values, want 3", s.Len())
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	inputs := [][]flooding.Value{
		{"x", "m"},
		{"a"},
		{"m", "zz", ""},
	}
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0, 1}}

	var want []flooding.Value
	var wantMax flooding.Value
	for i, order := range orders {
		s := NewProposalSet()
		for _, j := range order {
			s.Merge(inputs[j]...)
		}
		got := s.Values()
		max, err := s.Max()
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			want, wantMax = got, max
			continue
		}
		if !slices.Equal(got, want) || max != wantMax {
			t.Errorf("order %v: got %v (max %q), want %v (max %q)", order, got, max, want, wantMax)
		}
	}
	if wantMax != "zz" {
		t.Errorf("max is %q, want %q", wantMax, "zz")
	}
}

func TestMaxIsLexicographic(t *testing.T) {
	s := NewProposalSet("10", "9", "100")
	max, err := s.Max()
	if err != nil {
		t.Fatal(err)
	}
	if max != "9" {
		t.Errorf("max is %q, want %q", max, "9")
	}
	if !s.Contains("100") || s.Contains("8") {
		t.Error("unexpected contents")
	}
}

func TestEmptyStringIsAValue(t *testing.T) {
	s := NewProposalSet("")
	max, err := s.Max()
	if err != nil || max != "" {
		t.Fatalf("Max() = %q, %v", max, err)
	}
}
