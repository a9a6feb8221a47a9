package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/httpapi"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/simulation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func newRunCommand() *cobra.Command {
	var (
		enableHTTP bool
		listen     string
		noAuth     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation until interrupted",
		Long: `Start every drone, client and server of the topology and keep them running.
With --http the controller API is served as well. On SIGINT or SIGTERM every
drone is crashed and drained before the process exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cmd.Flags().Changed("http") {
				cfg.HTTP.Enabled = enableHTTP
			}
			if cmd.Flags().Changed("listen") {
				cfg.HTTP.Listen = listen
			}
			if cmd.Flags().Changed("no-auth") {
				cfg.HTTP.NoAuth = noAuth
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runSimulation(ctx, cfg.HTTP.Enabled, cfg.HTTP.Listen, cfg.HTTP.SecretKey, cfg.HTTP.NoAuth, func() (*simulation.Controller, error) {
				return simulation.New(cfg, logger)
			}, logger)
		},
	}

	cmd.Flags().BoolVar(&enableHTTP, "http", false, "Serve the controller API")
	cmd.Flags().StringVar(&listen, "listen", ":8080", "Controller API listen address")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "Disable authentication on non-admin endpoints (development only)")

	return cmd
}

// runSimulation starts the simulation and the optional API and blocks until
// ctx is done, then shuts both down.
func runSimulation(ctx context.Context, serveHTTP bool, listen, secret string, noAuth bool, build func() (*simulation.Controller, error), logger *zap.Logger) error {
	sim, err := build()
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}

	logger.Info("starting simulation", zap.String("version", appVersion))
	// Drones outlive the signal so Close can crash and drain them
	if err := sim.Start(context.WithoutCancel(ctx)); err != nil {
		sim.Close(context.Background())
		return fmt.Errorf("start simulation: %w", err)
	}

	health, err := sim.Health(ctx)
	if err == nil {
		logger.Info("simulation running",
			zap.Int("drones", health.Drones),
			zap.Int("endpoints", health.Endpoints),
			zap.Int("links", health.Links),
			zap.Bool("connected", health.Connected))
	}

	var server *httpapi.Server
	serveErr := make(chan error, 1)
	if serveHTTP {
		server = httpapi.NewServer(sim, httpapi.Config{
			Listen:    listen,
			SecretKey: secret,
			NoAuth:    noAuth,
			Logger:    logger.Named("http"),
		})
		go func() { serveErr <- server.Start() }()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http api: %w", err)
			logger.Error("http api stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("http api shutdown", zap.Error(err))
		}
	}
	if err := sim.Close(shutdownCtx); err != nil {
		logger.Warn("simulation shutdown", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("close simulation: %w", err)
		}
	}
	logger.Info("simulation stopped")
	return runErr
}
