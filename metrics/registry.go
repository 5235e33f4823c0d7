package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relab/flooding/consensus"
	"github.com/relab/flooding/core/eventloop"
	"github.com/relab/flooding/core/logging"
)

const namespace = "flooding"

// Metric names accepted by Enable.
const (
	NameRounds    = "rounds"
	NameDecisions = "decisions"
	NamePeers     = "peers"
	NameStatus    = "status"
)

// AllMetrics lists every metric name.
var AllMetrics = []string{NameRounds, NameDecisions, NamePeers, NameStatus}

// Enable registers the named metrics with reg and starts the ticker that samples the engine.
// The returned Status holds the latest sample; it is updated every interval.
func Enable(
	eventLoop *eventloop.EventLoop,
	logger logging.Logger,
	reg prometheus.Registerer,
	engine *consensus.Engine,
	interval time.Duration,
	metricNames ...string,
) (*Status, error) {
	if len(metricNames) == 0 {
		return nil, fmt.Errorf("no metric names provided")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("invalid measurement interval: %v", interval)
	}
	status := &Status{}
	enabledMetrics := []string{}
	for _, name := range metricNames {
		switch name {
		case NameRounds:
			enableRounds(eventLoop, logger, reg)
		case NameDecisions:
			enableDecisions(eventLoop, reg)
		case NamePeers:
			enablePeers(eventLoop, reg)
		case NameStatus:
			enableStatus(eventLoop, reg, engine, status)
		default:
			return nil, fmt.Errorf("invalid metric: %s", name)
		}
		enabledMetrics = append(enabledMetrics, name)
	}
	logger.Infof("Metrics enabled: %v", enabledMetrics)
	addTicker(eventLoop, interval)
	return status, nil
}
