package main

import (
	"fmt"
	"os"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/config"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	appName    = "DroneMesh"
	appVersion = "0.1.0"
)

// Global flags
var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dronemesh",
		Short: "Simulated drone mesh network",
		Long: `dronemesh runs a network of drones, clients and servers in one process.
Drones forward source-routed packets, answer discovery floods and can be
crashed, relinked and made lossy while the simulation runs.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Topology file (YAML, TOML or JSON); defaults to ./dronemesh.* or $DRONEMESH_CONFIG")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newDiscoverCommand())
	rootCmd.AddCommand(newSendCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", appName, appVersion)
		},
	}
}

// loadConfig reads the topology and builds the process logger from it
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logger: %w", err)
	}
	return cfg, logger, nil
}
