package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/config"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/simulation"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrNotDelivered is returned by send when the message did not arrive in time
var ErrNotDelivered = errors.New("message not delivered")

func newDiscoverCommand() *cobra.Command {
	var (
		from uint8
		wait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Flood the network from a client or server and print the paths found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runDiscover(cmd.Context(), cmd.OutOrStdout(), cfg, logger, packet.NodeID(from), wait)
		},
	}

	cmd.Flags().Uint8Var(&from, "from", 0, "Client or server starting the flood")
	cmd.Flags().DurationVar(&wait, "wait", 500*time.Millisecond, "How long to collect flood responses")
	cmd.MarkFlagRequired("from")

	return cmd
}

func newSendCommand() *cobra.Command {
	var (
		from    uint8
		to      uint8
		route   []uint
		message string
		wait    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message and wait for it to be reassembled at the destination",
		Long: `Send one message through the network. With --route the message follows
that path; otherwise a flood from --from discovers the shortest path to --to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := make([]packet.NodeID, 0, len(route))
			for _, id := range route {
				if id > 255 {
					return fmt.Errorf("node id %d out of range", id)
				}
				path = append(path, packet.NodeID(id))
			}
			if len(path) == 0 && (!cmd.Flags().Changed("from") || !cmd.Flags().Changed("to")) {
				return fmt.Errorf("either --route or both --from and --to are required")
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runSend(cmd.Context(), cmd.OutOrStdout(), cfg, logger, sendOptions{
				route:   path,
				from:    packet.NodeID(from),
				to:      packet.NodeID(to),
				message: message,
				wait:    wait,
			})
		},
	}

	cmd.Flags().Uint8Var(&from, "from", 0, "Sending client or server")
	cmd.Flags().Uint8Var(&to, "to", 0, "Destination client or server")
	cmd.Flags().UintSliceVar(&route, "route", nil, "Explicit route, e.g. 1,2,3,4")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message to send")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "How long to wait for discovery and delivery")
	cmd.MarkFlagRequired("message")

	return cmd
}

// withSimulation starts a simulation for the duration of fn and crashes it afterwards
func withSimulation(ctx context.Context, cfg *config.Config, logger *zap.Logger, fn func(*simulation.Controller) error) error {
	sim, err := simulation.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sim.Close(closeCtx); err != nil {
			logger.Warn("simulation shutdown", zap.Error(err))
		}
	}()

	if err := sim.Start(ctx); err != nil {
		return fmt.Errorf("start simulation: %w", err)
	}
	return fn(sim)
}

func runDiscover(ctx context.Context, out io.Writer, cfg *config.Config, logger *zap.Logger, from packet.NodeID, wait time.Duration) error {
	return withSimulation(ctx, cfg, logger, func(sim *simulation.Controller) error {
		traces, err := sim.Discover(ctx, from, wait)
		if err != nil {
			return fmt.Errorf("discover from %d: %w", from, err)
		}

		fmt.Fprintf(out, "Discovered %d path(s) from node %d:\n", len(traces), from)
		for i, trace := range traces {
			fmt.Fprintf(out, "%d. %s\n", i+1, trace)
		}
		return nil
	})
}

type sendOptions struct {
	route    []packet.NodeID
	from, to packet.NodeID
	message  string
	wait     time.Duration
}

func runSend(ctx context.Context, out io.Writer, cfg *config.Config, logger *zap.Logger, opts sendOptions) error {
	return withSimulation(ctx, cfg, logger, func(sim *simulation.Controller) error {
		route := opts.route
		if len(route) == 0 {
			var err error
			route, err = sim.Route(ctx, opts.from, opts.to, opts.wait)
			if err != nil {
				return fmt.Errorf("route %d -> %d: %w", opts.from, opts.to, err)
			}
		}

		session, err := sim.SendMessage(route, []byte(opts.message))
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		fmt.Fprintf(out, "Sent session %d along %v\n", session, route)

		dst, err := sim.Endpoint(route[len(route)-1])
		if err != nil {
			return err
		}

		deadline := time.NewTimer(opts.wait)
		defer deadline.Stop()
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			if msg, ok := dst.Message(session); ok {
				fmt.Fprintf(out, "Delivered to node %d: %q\n", dst.ID(), msg)
				return nil
			}
			select {
			case <-tick.C:
			case <-deadline.C:
				return fmt.Errorf("%w: session %d within %s", ErrNotDelivered, session, opts.wait)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
