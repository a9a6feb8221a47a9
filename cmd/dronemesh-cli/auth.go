package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with the controller API",
		Long: `Authenticate with the controller API using your operator ID.
This prints a JWT token that can be reused with --token or DRONEMESH_TOKEN.
Log in as "admin" to use the admin commands.`,
		Args: cobra.NoArgs,
		RunE: runAuth,
	}
}

func runAuth(cmd *cobra.Command, args []string) error {
	if operatorID == "" {
		return fmt.Errorf("operator-id is required to authenticate")
	}

	ctx, cancel := withTimeout(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Authenticating with server %s as operator %s...\n", serverURL, operatorID)

	if err := client.Authenticate(ctx); err != nil {
		return err
	}

	token := client.GetToken()
	fmt.Fprintf(out, "✅ Authentication successful!\n")
	fmt.Fprintf(out, "Token: %s\n", token)
	fmt.Fprintf(out, "\nSave this token for future use:\n")
	fmt.Fprintf(out, "  export DRONEMESH_TOKEN=\"%s\"\n", token)

	return nil
}

// withTimeout derives the request context of cmd
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
