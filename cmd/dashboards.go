package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fcclab/streamlab/internal/grafana"
)

// CreateDashboardsCmd creates the dashboards command group.
func CreateDashboardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboards",
		Short: "Grafana dashboard provisioning",
	}
	cmd.AddCommand(createDashboardsLoadCmd())
	return cmd
}

func createDashboardsLoadCmd() *cobra.Command {
	var cfg grafana.Config
	var dir string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Wait for Grafana and import every dashboard JSON file",
		Long: `Polls Grafana's health endpoint until it is ready, then imports each *.json file in the ` +
			`dashboards directory with overwrite enabled. Files that fail to import are reported and ` +
			`skipped. Defaults come from GRAFANA_URL, GRAFANA_USER, GRAFANA_PASSWORD and DASHBOARDS_DIR.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := signalContext()
			defer cancel()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Load-dashboard service starting...")

			p := grafana.New(cfg)
			if err := p.WaitHealthy(ctx); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Grafana not ready within timeout:", err)
				os.Exit(1)
			}
			fmt.Fprintln(out, "Grafana is ready.")

			res, err := p.ImportDir(ctx, dir)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				os.Exit(1)
			}
			if len(res.Failed) > 0 {
				fmt.Fprintf(out, "Failed: %s\n", strings.Join(res.Failed, ", "))
			}
			fmt.Fprintf(out, "Done. Imported %d dashboard(s).\n", res.Imported)
		},
	}

	cmd.Flags().StringVar(&cfg.URL, "url", envOr("GRAFANA_URL", "http://grafana:3000"), "Grafana URL (env GRAFANA_URL)")
	cmd.Flags().StringVar(&cfg.User, "user", envOr("GRAFANA_USER", "admin"), "Grafana user (env GRAFANA_USER)")
	cmd.Flags().StringVar(&cfg.Password, "password", envOr("GRAFANA_PASSWORD", "admin123"), "Grafana password (env GRAFANA_PASSWORD)")
	cmd.Flags().StringVar(&dir, "dir", envOr("DASHBOARDS_DIR", "/dashboards"), "Dashboards directory (env DASHBOARDS_DIR)")
	cmd.Flags().DurationVar(&cfg.HealthWait, "wait", grafana.DefaultHealthWait, "How long to wait for Grafana")
	cmd.Flags().DurationVar(&cfg.HealthInterval, "interval", grafana.DefaultHealthInterval, "Health poll interval")

	return cmd
}
