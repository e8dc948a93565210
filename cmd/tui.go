package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fcclab/streamlab/internal/tui"
)

// CreateTUICmd creates the terminal front end command.
func CreateTUICmd() *cobra.Command {
	var url, user, password string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Control a running viewer service from the terminal",
		Long: `Connects to the viewer service API, lists the configured streams and lets you open, ` +
			`close and record them. Credentials default to STREAMLAB_AUTH_USERNAME and ` +
			`STREAMLAB_AUTH_PASSWORD.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			client := tui.NewClient(url, user, password)
			if err := tui.Run(client); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&url, "url", envOr("STREAMLAB_URL", "http://127.0.0.1:8090"), "Viewer service URL")
	cmd.Flags().StringVar(&user, "user", envOr("STREAMLAB_AUTH_USERNAME", "admin"), "Basic auth username")
	cmd.Flags().StringVar(&password, "password", envOr("STREAMLAB_AUTH_PASSWORD", "password"), "Basic auth password")

	return cmd
}
