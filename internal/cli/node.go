package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relab/flooding/core/logging"
	"github.com/relab/flooding/internal/config"
	"github.com/relab/flooding/internal/profiling"
	"github.com/relab/flooding/metrics"
	"github.com/relab/flooding/replica"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// nodeCmd represents the node command
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a consensus process.",
	Long: `The node command runs a single process of the flooding consensus protocol.
The process finds its peers through the rendezvous service given by '--rendezvous',
through the static peer list given by '--peers', or both.
With a static peer list, each process dials the peers with lower IDs and waits for
the peers with higher IDs to dial it, so processes should be started in ID order.

Proposals are read from '--input', one line per round ('-' reads from stdin),
or generated automatically with '--auto'. Decisions are printed to stdout.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewNodeViper()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runNode(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)

	nodeCmd.Flags().Uint32("id", 0, "the ID of the process (required)")
	nodeCmd.Flags().String("listen", "localhost:0", "the address to accept peer connections on")
	nodeCmd.Flags().String("advertise", "", "the address peers should dial (defaults to the listen address)")
	nodeCmd.Flags().String("rendezvous", "", "the address of the rendezvous service")
	nodeCmd.Flags().StringSlice("peers", nil, "static list of peers (id=host:port)")
	nodeCmd.Flags().Duration("connect-timeout", 5*time.Second, "duration of the initial connection timeout")

	nodeCmd.Flags().String("input", "-", "file to read proposals from, one per line ('-' for stdin)")
	nodeCmd.Flags().Bool("auto", false, "propose '<id>-<round>' in every round")
	nodeCmd.Flags().Float64("rate-limit", 0, "maximum number of automatic proposals per second (0 is unlimited)")
	nodeCmd.Flags().Uint64("max-rounds", 0, "stop after this many rounds (0 is unbounded)")
	nodeCmd.Flags().Uint64("retain-rounds", 0, "number of past rounds to keep state for (0 keeps every round)")

	nodeCmd.Flags().String("metrics-listen", "", "the address to serve /metrics and /status on (disabled by default)")
	nodeCmd.Flags().StringSlice("metrics", metrics.AllMetrics, "list of metrics to enable")
	nodeCmd.Flags().Duration("measurement-interval", time.Second, "time interval between measurements")

	nodeCmd.Flags().String("cpu-profile", "", "path to store a CPU profile")
	nodeCmd.Flags().String("mem-profile", "", "path to store a memory profile")
	nodeCmd.Flags().String("trace", "", "path to store a trace")
	nodeCmd.Flags().String("fgprof-profile", "", "path to store a fgprof profile")

	err := viper.BindPFlags(nodeCmd.Flags())
	if err != nil {
		panic(err)
	}
}

func runNode(ctx context.Context, cfg *config.NodeConfig) (err error) {
	logger := logging.New("cli")

	if cfg.Profiling.Enabled() {
		stopProfilers, err := profiling.StartProfilers(cfg.Profiling)
		if err != nil {
			return err
		}
		defer func() {
			if stopErr := stopProfilers(); stopErr != nil {
				logger.Errorf("Failed to stop profilers: %v", stopErr)
			}
		}()
	}

	r, err := replica.New(cfg)
	if err != nil {
		return err
	}
	logger.Infof("Process %d listening on %s", cfg.ID, r.Info().Addr)
	return r.Run(ctx)
}
