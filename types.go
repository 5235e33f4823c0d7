// Package flooding contains the types shared by the components of the flooding consensus protocol.
//
// A set of processes connected in a full mesh each propose a value per round and flood their
// accumulated proposal sets to every peer. A process decides the largest value it has observed
// once it has heard from every peer that was connected when the round started, provided that no
// connection failed during the round. Decisions are flooded as well, so that processes that did
// not reach the decision on their own adopt it.
package flooding

import (
	"fmt"
	"sort"
	"strconv"
)

// ID uniquely identifies a process.
type ID uint32

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Round identifies a round of the protocol. The first round is 0.
type Round uint64

func (r Round) String() string {
	return strconv.FormatUint(uint64(r), 10)
}

// Value is a proposed value.
// Values are ordered lexicographically; the decision of a round is the greatest value observed.
type Value string

// SortValues sorts values in ascending order.
func SortValues(values []Value) {
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
}

// PeerInfo is the address of a process.
type PeerInfo struct {
	ID   ID
	Addr string
}

func (pi PeerInfo) String() string {
	return fmt.Sprintf("%d@%s", pi.ID, pi.Addr)
}
