package cli

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/relab/flooding/core/logging"
	"github.com/relab/flooding/internal/config"
	"github.com/relab/flooding/rendezvous"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rendezvousCmd represents the rendezvous command
var rendezvousCmd = &cobra.Command{
	Use:   "rendezvous",
	Short: "Run the rendezvous service.",
	Long: `The rendezvous command runs the service that processes join to find each other.
A joining process registers its ID and address and receives the list of processes that joined before it.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runRendezvous(ctx, config.NewRendezvousViper())
	},
}

func init() {
	rootCmd.AddCommand(rendezvousCmd)

	rendezvousCmd.Flags().String("listen", "localhost:5000", "the address to serve the rendezvous service on")
	// the node command owns the listen key
	cobra.CheckErr(viper.BindPFlag("rendezvous-listen", rendezvousCmd.Flags().Lookup("listen")))
}

func runRendezvous(ctx context.Context, cfg *config.RendezvousConfig) error {
	logger := logging.New("rendezvous")
	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	srv := rendezvous.NewServer(logger)
	stop := context.AfterFunc(ctx, srv.Stop)
	defer stop()

	return srv.Serve(lis)
}
