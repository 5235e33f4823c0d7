package config

import (
	"github.com/relab/flooding"
	"github.com/relab/flooding/internal/profiling"
	"github.com/spf13/viper"
)

// NewNodeViper returns the node configuration held by the global viper instance.
func NewNodeViper() (*NodeConfig, error) {
	return NodeFromViper(viper.GetViper())
}

// NodeFromViper returns the node configuration held by v.
func NodeFromViper(v *viper.Viper) (*NodeConfig, error) {
	peers, err := ParsePeers(v.GetStringSlice("peers"))
	if err != nil {
		return nil, err
	}
	cfg := &NodeConfig{
		ID:                  flooding.ID(v.GetUint32("id")),
		Listen:              v.GetString("listen"),
		Advertise:           v.GetString("advertise"),
		Rendezvous:          v.GetString("rendezvous"),
		Peers:               peers,
		ConnectTimeout:      v.GetDuration("connect-timeout"),
		Input:               v.GetString("input"),
		Auto:                v.GetBool("auto"),
		RateLimit:           v.GetFloat64("rate-limit"),
		MaxRounds:           v.GetUint64("max-rounds"),
		RetainRounds:        v.GetUint64("retain-rounds"),
		MetricsListen:       v.GetString("metrics-listen"),
		Metrics:             v.GetStringSlice("metrics"),
		MeasurementInterval: v.GetDuration("measurement-interval"),
		Profiling: profiling.Config{
			CPUProfile: v.GetString("cpu-profile"),
			MemProfile: v.GetString("mem-profile"),
			Trace:      v.GetString("trace"),
			FgProf:     v.GetString("fgprof-profile"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewRendezvousViper returns the rendezvous configuration held by the global viper instance.
func NewRendezvousViper() *RendezvousConfig {
	return &RendezvousConfig{
		Listen: viper.GetString("rendezvous-listen"),
	}
}
