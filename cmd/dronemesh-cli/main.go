package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/httpclient"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL  string
	operatorID string
	token      string
	timeout    time.Duration
	noAuth     bool

	// Global client instance
	client *httpclient.Client
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dronemesh-cli",
		Short: "DroneMesh controller API command line interface",
		Long: `dronemesh-cli talks to the controller API of a running dronemesh simulation.
It inspects nodes and their event journals, sends messages, runs discovery
floods and, with an admin token, crashes drones and rewires links.`,
		PersistentPreRunE: initializeClient,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Controller API URL")
	rootCmd.PersistentFlags().StringVar(&operatorID, "operator-id", "", "Operator ID for authentication (\"admin\" for admin commands)")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("DRONEMESH_TOKEN"), "JWT token (if already authenticated)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&noAuth, "no-auth", false, "Skip authentication (for servers started with --no-auth)")

	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newNodesCommand())
	rootCmd.AddCommand(newLinksCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newStreamCommand())
	rootCmd.AddCommand(newSendCommand())
	rootCmd.AddCommand(newInjectCommand())
	rootCmd.AddCommand(newDiscoverCommand())
	rootCmd.AddCommand(newAdminCommand())

	return rootCmd
}

// initializeClient sets up the HTTP client with global configuration
func initializeClient(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	if !noAuth && operatorID == "" && token == "" {
		return fmt.Errorf("operator-id or token is required (unless using --no-auth)")
	}

	effectiveOperatorID := operatorID
	if effectiveOperatorID == "" {
		effectiveOperatorID = "dev-operator"
	}

	var err error
	client, err = httpclient.NewClient(httpclient.Config{
		ServerURL:  serverURL,
		OperatorID: effectiveOperatorID,
		Timeout:    timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	if token != "" {
		client.SetToken(token)
	} else if noAuth && operatorID == "" {
		// The server ignores it, but the client refuses to send without one
		client.SetToken("no-auth-mode")
	}

	return nil
}

// requireAuthentication checks if the client is authenticated, logging in
// with the operator id when no token was given
func requireAuthentication(cmd *cobra.Command) error {
	if client == nil {
		return fmt.Errorf("client not initialized")
	}
	if client.IsAuthenticated() {
		return nil
	}
	if operatorID == "" {
		return fmt.Errorf("not authenticated - run 'dronemesh-cli auth' first or provide --token")
	}

	ctx, cancel := withTimeout(cmd)
	defer cancel()
	return client.Authenticate(ctx)
}
