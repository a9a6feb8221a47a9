package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/httpclient"
	"github.com/spf13/cobra"
)

func newStreamCommand() *cobra.Command {
	var (
		node       uint8
		offset     int64
		bufferSize int
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Follow drone events in real-time",
		Long: `Follow journaled drone events using Server-Sent Events, either of one
drone (--node) or of the whole network. Press Ctrl+C to stop streaming.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAuthentication(cmd); err != nil {
				return err
			}

			config := httpclient.StreamConfig{
				Offset:     offset,
				BufferSize: bufferSize,
			}
			if cmd.Flags().Changed("node") {
				config.Node = &node
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runStream(ctx, cmd, config)
		},
	}

	cmd.Flags().Uint8Var(&node, "node", 0, "Only stream events of this drone")
	cmd.Flags().Int64Var(&offset, "offset", 0, "Journal offset to start from")
	cmd.Flags().IntVar(&bufferSize, "buffer-size", 100, "Event buffer size")

	return cmd
}

func runStream(ctx context.Context, cmd *cobra.Command, config httpclient.StreamConfig) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "🌊 Streaming events from %s", serverURL)
	if config.Node != nil {
		fmt.Fprintf(out, " (node %d)", *config.Node)
	} else {
		fmt.Fprintf(out, " (all nodes)")
	}
	fmt.Fprintln(out, "...")

	streamClient, err := client.Stream(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	defer streamClient.Close()

	errs := streamClient.Errors()
	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\n✅ Stream stopped. Received %d events.\n", count)
			return nil

		case event, ok := <-streamClient.Events():
			if !ok {
				fmt.Fprintf(out, "\n🔌 Stream closed. Received %d events.\n", count)
				return nil
			}
			count++
			printEvent(out, event)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Non-fatal, the client reconnects
			fmt.Fprintf(cmd.ErrOrStderr(), "❌ Stream error: %v\n", err)
		}
	}
}
