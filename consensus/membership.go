package consensus

import "github.com/relab/flooding"

// MembershipView tracks the peers this process is connected to.
// A crashed peer is removed permanently; it cannot connect again.
type MembershipView struct {
	live    PeerSet
	crashed PeerSet
}

// NewMembershipView returns a view of the given live peers.
func NewMembershipView(peers ...flooding.ID) *MembershipView {
	return &MembershipView{live: NewPeerSet(peers...)}
}

// Connect adds peer to the live peers.
// It returns false if the peer is already live or has crashed.
func (mv *MembershipView) Connect(peer flooding.ID) bool {
	if mv.crashed.Contains(peer) || mv.live.Contains(peer) {
		return false
	}
	mv.live.Add(peer)
	return true
}

// Crash removes peer from the live peers.
// It returns false if the peer had already crashed.
func (mv *MembershipView) Crash(peer flooding.ID) bool {
	if mv.crashed.Contains(peer) {
		return false
	}
	mv.crashed.Add(peer)
	mv.live.Remove(peer)
	return true
}

// Live returns a copy of the live peers.
func (mv *MembershipView) Live() PeerSet {
	return mv.live.Clone()
}

// Len returns the number of live peers.
func (mv *MembershipView) Len() int {
	return mv.live.Len()
}
