// Package config holds the configuration of the flooding commands.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/relab/flooding"
	"github.com/relab/flooding/internal/profiling"
)

// NodeConfig holds the configuration of a process.
type NodeConfig struct {
	// ID is the process ID. It must be non-zero and unique.
	ID flooding.ID
	// Listen is the address to accept peer connections on.
	Listen string
	// Advertise is the address peers should dial. It defaults to the address of the listener.
	Advertise string
	// Rendezvous is the address of the rendezvous service (optional).
	Rendezvous string
	// Peers is a static list of peers. The process dials the peers with lower IDs
	// and waits for the peers with higher IDs to dial it.
	Peers []flooding.PeerInfo
	// ConnectTimeout bounds the time spent establishing the initial connections.
	ConnectTimeout time.Duration

	// Input is the file to read proposals from, one per line. "-" reads from stdin.
	Input string
	// Auto proposes "<id>-<round>" in every round instead of reading Input.
	Auto bool
	// RateLimit is the maximum number of automatic proposals per second (0 is unlimited).
	RateLimit float64
	// MaxRounds stops the process after this many rounds (0 is unbounded).
	MaxRounds uint64
	// RetainRounds is the number of past rounds whose state is kept (0 keeps every round).
	RetainRounds uint64

	// MetricsListen is the address to serve metrics and status on (optional).
	MetricsListen string
	// Metrics is the list of metrics to enable.
	Metrics []string
	// MeasurementInterval is the time between metric samples.
	MeasurementInterval time.Duration

	Profiling profiling.Config
}

// Validate checks that the configuration can be used to start a process.
func (c *NodeConfig) Validate() error {
	if c.ID == 0 {
		return errors.New("config: id must be set to a non-zero value")
	}
	if c.Listen == "" {
		return errors.New("config: listen address must be set")
	}
	if c.Auto && c.Input != "" && c.Input != "-" {
		return errors.New("config: auto and input are mutually exclusive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate-limit must not be negative: %v", c.RateLimit)
	}
	if c.MetricsListen != "" && c.MeasurementInterval <= 0 {
		return fmt.Errorf("config: measurement-interval must be positive: %v", c.MeasurementInterval)
	}
	seen := make(map[flooding.ID]bool)
	for _, peer := range c.Peers {
		if peer.ID == c.ID {
			return fmt.Errorf("config: peer list contains own id %d", c.ID)
		}
		if seen[peer.ID] {
			return fmt.Errorf("config: duplicate peer id %d", peer.ID)
		}
		seen[peer.ID] = true
	}
	return nil
}

// DialPeers returns the static peers this process must dial, that is, those with a lower ID.
func (c *NodeConfig) DialPeers() []flooding.PeerInfo {
	var peers []flooding.PeerInfo
	for _, peer := range c.Peers {
		if peer.ID < c.ID {
			peers = append(peers, peer)
		}
	}
	return peers
}

// AwaitPeers returns the IDs of the static peers expected to dial this process, that is, those with a higher ID.
func (c *NodeConfig) AwaitPeers() []flooding.ID {
	var ids []flooding.ID
	for _, peer := range c.Peers {
		if peer.ID > c.ID {
			ids = append(ids, peer.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// RendezvousConfig holds the configuration of the rendezvous service.
type RendezvousConfig struct {
	// Listen is the address to serve the rendezvous service on.
	Listen string
}
