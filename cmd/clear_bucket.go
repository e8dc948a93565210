package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fcclab/streamlab/internal/influx"
)

// CreateClearBucketCmd creates the InfluxDB bucket clear command.
func CreateClearBucketCmd() *cobra.Command {
	var cfg influx.Config
	var yes bool

	cmd := &cobra.Command{
		Use:     "clear-bucket BUCKET",
		Short:   "Delete all data from an InfluxDB bucket",
		Example: "  streamlab clear-bucket fcclab\n  streamlab clear-bucket fcclab --yes",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			bucket := args[0]
			out := cmd.OutOrStdout()

			if !yes {
				ok, err := influx.Confirm(cmd.InOrStdin(), out, cfg, bucket)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
					os.Exit(1)
				}
				if !ok {
					fmt.Fprintln(out, "Operation cancelled.")
					return
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			clearer := influx.New(cfg)
			defer clearer.Close()
			if err := clearer.Clear(ctx, bucket); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				clearer.Close()
				os.Exit(1)
			}
			fmt.Fprintf(out, "Bucket '%s' cleared.\n", bucket)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&cfg.URL, "url", envOr("INFLUX_URL", influx.DefaultURL), "InfluxDB URL (env INFLUX_URL)")
	cmd.Flags().StringVar(&cfg.Org, "org", envOr("INFLUX_ORG", influx.DefaultOrg), "Organization (env INFLUX_ORG)")
	cmd.Flags().StringVar(&cfg.Token, "token", envOr("INFLUX_TOKEN", influx.DefaultToken), "API token (env INFLUX_TOKEN)")

	return cmd
}
