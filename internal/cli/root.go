// Package cli implements the flooding command-line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/relab/flooding/core/logging"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "flooding",
		Short: "A command-line utility for running flooding consensus.",
		Long: `flooding runs processes of a round-based flooding consensus protocol.
Every process proposes a value in each round and floods the values it has seen to its peers.
When a process has heard from all of its peers in a round, and no peer crashed during the round,
it decides the largest value it has seen.

To run a process, use the 'flooding node' command.
Processes can find each other through a rendezvous service ('flooding rendezvous')
or through a static list of peers.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flooding.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "sets the log level (debug, info, warn, error)")
	cobra.CheckErr(viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")))
	rootCmd.PersistentFlags().StringSlice("log-pkgs", []string{}, "set the log level on a per-package basis (package:level).")
	cobra.CheckErr(viper.BindPFlag("log-pkgs", rootCmd.PersistentFlags().Lookup("log-pkgs")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".flooding" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".flooding")
	}

	viper.SetEnvPrefix("flooding")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	if err := logging.SetLogLevel(viper.GetString("log-level")); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := logging.SetPackageLogLevels(viper.GetStringSlice("log-pkgs")); err != nil {
		fmt.Println("log-pkgs flag must be a comma-separated list of package:level strings:", err)
		os.Exit(1)
	}
}
