package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/httpclient"
	"github.com/spf13/cobra"
)

func newNodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List every node with its neighbors and counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			nodes, err := client.ListNodes(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d node(s):\n\n", len(nodes))
			for _, n := range nodes {
				printNode(out, n)
			}
			return nil
		},
	}
}

func printNode(out io.Writer, n httpclient.Node) {
	fmt.Fprintf(out, "%d (%s)", n.ID, n.Type)
	if n.State != "" {
		fmt.Fprintf(out, " %s", n.State)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "   Neighbors: %s\n", joinIDs(n.Neighbors))
	if n.PDR != nil {
		fmt.Fprintf(out, "   PDR: %.2f\n", *n.PDR)
	}
	if s := n.Stats; s != nil {
		fmt.Fprintf(out, "   Received: %d  Forwarded: %d  Dropped: %d  NACKs: %d  Shortcuts: %d  Floods: %d\n",
			s.Received, s.Forwarded, s.Dropped, s.NacksSent, s.Shortcuts, s.Floods)
	}
}

func newLinksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "links",
		Short: "List every link of the network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			links, err := client.ListLinks(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d link(s):\n", len(links))
			for _, l := range links {
				fmt.Fprintf(out, "  %d <-> %d\n", l.A, l.B)
			}
			return nil
		},
	}
}

func newEventsCommand() *cobra.Command {
	var (
		node   uint8
		offset int64
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the event journal of one drone",
		Long: `Read journaled events of a drone from an offset. Every packet the drone
sent, dropped, shortcut or NACKed is recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			resp, err := client.ReadNodeEvents(ctx, node, offset, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Events) == 0 {
				fmt.Fprintf(out, "No events for node %d from offset %d\n", node, offset)
				return nil
			}
			fmt.Fprintf(out, "%d event(s) of node %d from offset %d:\n\n", resp.Count, node, resp.StartOffset)
			for _, e := range resp.Events {
				printEvent(out, e)
			}
			return nil
		},
	}

	cmd.Flags().Uint8Var(&node, "node", 0, "Drone whose journal to read")
	cmd.Flags().Int64Var(&offset, "offset", 0, "Offset to start reading from")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events to return")
	cmd.MarkFlagRequired("node")

	return cmd
}

func printEvent(out io.Writer, e httpclient.EventMessage) {
	fmt.Fprintf(out, "[%d/%d] %s %s session=%d hops=%s index=%d at %s\n",
		e.NodeID, e.Offset, e.Kind, e.PacketType, e.SessionID, joinIDs(e.Hops), e.HopIndex,
		e.Timestamp.Format("15:04:05.000"))
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
