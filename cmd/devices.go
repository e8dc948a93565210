package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// CreateDevicesCmd creates the device listing command.
func CreateDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 video devices and their formats",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := signalContext()
			defer cancel()

			if err := printDevices(ctx, cmd); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				os.Exit(1)
			}
		},
	}
}
