package config_test

import (
	"testing"
	"time"

	"github.com/relab/flooding"
	"github.com/relab/flooding/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestParsePeer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    flooding.PeerInfo
		wantErr bool
	}{
		{name: "HostPort_____", input: "1=localhost:9000", want: flooding.PeerInfo{ID: 1, Addr: "localhost:9000"}},
		{name: "Spaces_______", input: " 12=10.0.0.1:80 ", want: flooding.PeerInfo{ID: 12, Addr: "10.0.0.1:80"}},
		{name: "IPv6_________", input: "3=[::1]:9000", want: flooding.PeerInfo{ID: 3, Addr: "[::1]:9000"}},
		{name: "NoSeparator__", input: "localhost:9000", wantErr: true},
		{name: "NoAddress____", input: "1=", wantErr: true},
		{name: "ZeroID_______", input: "0=localhost:9000", wantErr: true},
		{name: "NegativeID___", input: "-1=localhost:9000", wantErr: true},
		{name: "IDOutOfRange_", input: "4294967296=localhost:9000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := config.ParsePeer(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParsePeers(t *testing.T) {
	peers, err := config.ParsePeers([]string{"1=a:1", "2=b:2"})
	require.NoError(t, err)
	require.Equal(t, []flooding.PeerInfo{{ID: 1, Addr: "a:1"}, {ID: 2, Addr: "b:2"}}, peers)

	_, err = config.ParsePeers([]string{"1=a:1", "bad"})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() config.NodeConfig {
		return config.NodeConfig{ID: 2, Listen: ":0"}
	}
	tests := []struct {
		name    string
		modify  func(*config.NodeConfig)
		wantErr bool
	}{
		{name: "Valid________", modify: func(*config.NodeConfig) {}},
		{name: "NoID_________", modify: func(c *config.NodeConfig) { c.ID = 0 }, wantErr: true},
		{name: "NoListen_____", modify: func(c *config.NodeConfig) { c.Listen = "" }, wantErr: true},
		{name: "AutoAndInput_", modify: func(c *config.NodeConfig) { c.Auto = true; c.Input = "in.txt" }, wantErr: true},
		{name: "AutoAndStdin_", modify: func(c *config.NodeConfig) { c.Auto = true; c.Input = "-" }},
		{name: "NegativeRate_", modify: func(c *config.NodeConfig) { c.RateLimit = -1 }, wantErr: true},
		{name: "NoInterval___", modify: func(c *config.NodeConfig) { c.MetricsListen = ":0" }, wantErr: true},
		{name: "OwnID________", modify: func(c *config.NodeConfig) { c.Peers = []flooding.PeerInfo{{ID: 2, Addr: "a:1"}} }, wantErr: true},
		{name: "DuplicatePeer", modify: func(c *config.NodeConfig) {
			c.Peers = []flooding.PeerInfo{{ID: 1, Addr: "a:1"}, {ID: 1, Addr: "b:1"}}
		}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDialAndAwaitPeers(t *testing.T) {
	cfg := config.NodeConfig{
		ID:    3,
		Peers: []flooding.PeerInfo{{ID: 5, Addr: "e:5"}, {ID: 1, Addr: "a:1"}, {ID: 4, Addr: "d:4"}, {ID: 2, Addr: "b:2"}},
	}
	require.Equal(t, []flooding.PeerInfo{{ID: 1, Addr: "a:1"}, {ID: 2, Addr: "b:2"}}, cfg.DialPeers())
	require.Equal(t, []flooding.ID{4, 5}, cfg.AwaitPeers())
}

func TestNodeFromViper(t *testing.T) {
	v := viper.New()
	v.Set("id", 3)
	v.Set("listen", "127.0.0.1:0")
	v.Set("peers", []string{"1=127.0.0.1:9001", "2=127.0.0.1:9002"})
	v.Set("auto", true)
	v.Set("rate-limit", 10.0)
	v.Set("max-rounds", 5)
	v.Set("retain-rounds", 2)
	v.Set("connect-timeout", "2s")
	v.Set("metrics", []string{"rounds", "peers"})
	v.Set("cpu-profile", "cpu.prof")

	cfg, err := config.NodeFromViper(v)
	require.NoError(t, err)
	require.Equal(t, flooding.ID(3), cfg.ID)
	require.Equal(t, "127.0.0.1:0", cfg.Listen)
	require.Len(t, cfg.Peers, 2)
	require.True(t, cfg.Auto)
	require.Equal(t, 10.0, cfg.RateLimit)
	require.Equal(t, uint64(5), cfg.MaxRounds)
	require.Equal(t, uint64(2), cfg.RetainRounds)
	require.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	require.Equal(t, []string{"rounds", "peers"}, cfg.Metrics)
	require.Equal(t, "cpu.prof", cfg.Profiling.CPUProfile)
	require.True(t, cfg.Profiling.Enabled())
}

func TestNodeFromViperInvalid(t *testing.T) {
	v := viper.New()
	v.Set("listen", ":0")
	_, err := config.NodeFromViper(v)
	require.Error(t, err, "missing id must be rejected")

	v.Set("id", 1)
	v.Set("peers", []string{"nonsense"})
	_, err = config.NodeFromViper(v)
	require.Error(t, err)
}
