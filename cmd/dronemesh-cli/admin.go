package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin commands (requires admin privileges)",
		Long:  "Commands that change the simulated network. Authenticate as operator \"admin\".",
	}

	cmd.AddCommand(newAdminCrashCommand())
	cmd.AddCommand(newAdminPDRCommand())
	cmd.AddCommand(newAdminLinkCommand())
	cmd.AddCommand(newAdminUnlinkCommand())
	cmd.AddCommand(newAdminStatsCommand())

	return cmd
}

func newAdminCrashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "crash <drone>",
		Short: "Crash a drone",
		Long: `Crash a drone. Its neighbors forget it and it drains its inbox before
stopping. Refused when the crash would partition the network.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if err := client.Crash(ctx, ids[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "💥 Drone %d crashed\n", ids[0])
			return nil
		},
	}
}

func newAdminPDRCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pdr <drone> <rate>",
		Short: "Set the packet drop rate of a drone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			pdr, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid drop rate %q: %w", args[1], err)
			}
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if err := client.SetPacketDropRate(ctx, ids[0], pdr); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Drone %d now drops %.0f%% of fragments\n", ids[0], pdr*100)
			return nil
		},
	}
}

func newAdminLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link <a> <b>",
		Short: "Link two nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if err := client.AddLink(ctx, ids[0], ids[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🔗 Linked %d <-> %d\n", ids[0], ids[1])
			return nil
		},
	}
}

func newAdminUnlinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <a> <b>",
		Short: "Remove the link between two nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if err := client.RemoveLink(ctx, ids[0], ids[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✂️  Unlinked %d <-> %d\n", ids[0], ids[1])
			return nil
		},
	}
}

func newAdminStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show journal statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			stats, err := client.AdminGetStats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📊 DroneMesh statistics:\n\n")
			fmt.Fprintf(out, "Journaled events: %d\n", stats.TotalEvents)
			fmt.Fprintf(out, "Journaled nodes: %d\n", stats.TopicCount)
			fmt.Fprintf(out, "Controller shortcuts: %d\n", stats.Shortcuts)
			for topic, count := range stats.TopicCounts {
				fmt.Fprintf(out, "  %s: %d\n", topic, count)
			}
			return nil
		},
	}
}

func parseIDs(args []string) ([]uint8, error) {
	ids := make([]uint8, len(args))
	for i, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q", arg)
		}
		ids[i] = uint8(id)
	}
	return ids, nil
}
