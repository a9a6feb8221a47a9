package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check simulation health",
		Long:  "Check whether the simulation is running and its network is connected",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checking health of %s...\n", serverURL)

	health, err := client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Healthy {
		fmt.Fprintf(out, "✅ Simulation is healthy!\n")
	} else {
		fmt.Fprintf(out, "❌ Simulation is not healthy!\n")
	}
	fmt.Fprintf(out, "Started: %t\n", health.Started)
	fmt.Fprintf(out, "Connected: %t\n", health.Connected)
	fmt.Fprintf(out, "Drones: %d (%d crashed)\n", health.Drones, health.CrashedDrones)
	fmt.Fprintf(out, "Clients and servers: %d\n", health.Endpoints)
	fmt.Fprintf(out, "Links: %d\n", health.Links)
	fmt.Fprintf(out, "Journaled events: %d\n", health.JournalEvents)
	if health.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", health.Message)
	}

	return nil
}
