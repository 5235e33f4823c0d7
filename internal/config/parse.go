package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relab/flooding"
)

// ParsePeers parses a list of peers given as "id=host:port" strings.
func ParsePeers(list []string) ([]flooding.PeerInfo, error) {
	peers := make([]flooding.PeerInfo, 0, len(list))
	for _, s := range list {
		peer, err := ParsePeer(s)
		if err != nil {
			return nil, err
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

// ParsePeer parses a peer given as an "id=host:port" string.
func ParsePeer(peer string) (flooding.PeerInfo, error) {
	idStr, addr, ok := strings.Cut(strings.TrimSpace(peer), "=")
	if !ok || addr == "" {
		return flooding.PeerInfo{}, fmt.Errorf("config: invalid peer %q: expected id=host:port", peer)
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return flooding.PeerInfo{}, fmt.Errorf("config: invalid peer id in %q", peer)
	}
	return flooding.PeerInfo{ID: flooding.ID(id), Addr: addr}, nil
}
