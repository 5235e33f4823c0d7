package consensus

import (
	"errors"

	"github.com/relab/flooding"
)

// ErrEmptySet is returned by ProposalSet.Max when the set contains no values.
var ErrEmptySet = errors.New("proposal set is empty")

// ProposalSet is a grow-only set of proposed values.
// Merging is idempotent, commutative and associative: the contents of the set
// only depend on which values were merged, not on the order or the number of merges.
type ProposalSet struct {
	values map[flooding.Value]struct{}
	max    flooding.Value
}

// NewProposalSet returns a set containing the given values.
func NewProposalSet(values ...flooding.Value) *ProposalSet {
	s := &ProposalSet{values: make(map[flooding.Value]struct{})}
	s.Merge(values...)
	return s
}

// Merge adds the values to the set and returns the number of values that were not already present.
func (s *ProposalSet) Merge(values ...flooding.Value) (added int) {
	for _, v := range values {
		if _, ok := s.values[v]; ok {
			continue
		}
		if len(s.values) == 0 || v > s.max {
			s.max = v
		}
		s.values[v] = struct{}{}
		added++
	}
	return added
}

// Contains returns true if v is in the set.
func (s *ProposalSet) Contains(v flooding.Value) bool {
	_, ok := s.values[v]
	return ok
}

// Len returns the number of values in the set.
func (s *ProposalSet) Len() int {
	return len(s.values)
}

// Max returns the greatest value in the set. This is the value a process decides on.
func (s *ProposalSet) Max() (flooding.Value, error) {
	if len(s.values) == 0 {
		return "", ErrEmptySet
	}
	return s.max, nil
}

// Values returns the values of the set in ascending order.
func (s *ProposalSet) Values() []flooding.Value {
	values := make([]flooding.Value, 0, len(s.values))
	for v := range s.values {
		values = append(values, v)
	}
	flooding.SortValues(values)
	return values
}
