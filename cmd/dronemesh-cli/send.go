package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSendCommand() *cobra.Command {
	var (
		route   []uint
		from    uint8
		to      uint8
		message string
		wait    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message through the network",
		Long: `Send a message from a client or server. With --route the fragments follow
that path; otherwise the server floods from --from and picks the shortest
path to --to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := toNodeIDs(route)
			if err != nil {
				return err
			}
			if len(ids) == 0 && (!cmd.Flags().Changed("from") || !cmd.Flags().Changed("to")) {
				return fmt.Errorf("either --route or both --from and --to are required")
			}
			if err := requireAuthentication(cmd); err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			if len(ids) > 0 {
				resp, err := client.SendMessage(ctx, ids, message)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "✅ Sent session %d in %d fragment(s) along %s\n", resp.SessionID, resp.Fragments, joinIDs(resp.Route))
				return nil
			}

			resp, err := client.SendMessageTo(ctx, from, to, message, wait)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Sent session %d in %d fragment(s) along discovered route %s\n", resp.SessionID, resp.Fragments, joinIDs(resp.Route))
			return nil
		},
	}

	cmd.Flags().UintSliceVar(&route, "route", nil, "Explicit route, e.g. 1,2,3,4")
	cmd.Flags().Uint8Var(&from, "from", 0, "Sending client or server")
	cmd.Flags().Uint8Var(&to, "to", 0, "Destination client or server")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message to send")
	cmd.Flags().DurationVar(&wait, "wait", 500*time.Millisecond, "Discovery window when no route is given")
	cmd.MarkFlagRequired("message")

	return cmd
}

func newInjectCommand() *cobra.Command {
	var (
		from    uint8
		encoded string
	)

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Inject a raw wire encoded packet at a client or server",
		Long: `Inject a packet, encoded in the wire format and base64, as if the client
or server --from had sent it. Useful to exercise NACK paths with
hand-crafted routing headers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			resp, err := client.SendPacket(ctx, from, encoded)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Injected %s at node %d\n", resp.PacketType, from)
			return nil
		},
	}

	cmd.Flags().Uint8Var(&from, "from", 0, "Client or server sending the packet")
	cmd.Flags().StringVar(&encoded, "packet", "", "Base64 wire encoded packet")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("packet")

	return cmd
}

func newDiscoverCommand() *cobra.Command {
	var (
		from uint8
		wait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Flood the network and print the discovered paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAuthentication(cmd); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			resp, err := client.Discover(ctx, from, wait)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Discovered %d path(s) from node %d:\n", len(resp.Paths), resp.From)
			for i, path := range resp.Paths {
				fmt.Fprintf(out, "%d.", i+1)
				for _, hop := range path {
					fmt.Fprintf(out, " %d(%s)", hop.ID, hop.Type)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().Uint8Var(&from, "from", 0, "Client or server starting the flood")
	cmd.Flags().DurationVar(&wait, "wait", 500*time.Millisecond, "How long to collect flood responses")
	cmd.MarkFlagRequired("from")

	return cmd
}

func toNodeIDs(ids []uint) ([]uint8, error) {
	out := make([]uint8, 0, len(ids))
	for _, id := range ids {
		if id > 255 {
			return nil, fmt.Errorf("node id %d out of range", id)
		}
		out = append(out, uint8(id))
	}
	return out, nil
}
