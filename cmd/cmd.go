// Package cmd holds the streamlab subcommands.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Register adds every subcommand to root.
func Register(root *cobra.Command) {
	root.AddCommand(
		CreatePublishCmd(),
		CreatePublishFileCmd(),
		CreateEncodersCmd(),
		CreateDevicesCmd(),
		CreateProbeCmd(),
		CreateDashboardsCmd(),
		CreateClearBucketCmd(),
		CreateSelfUpdateCmd(),
		CreateVersionCmd(),
		CreateTUICmd(),
	)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// envOr returns the environment variable key, or fallback when it is unset.
func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
