package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fcclab/streamlab/internal/encoders"
)

// CreateEncodersCmd creates the encoder probe command.
func CreateEncodersCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "encoders",
		Short: "Show H.264 encoder availability",
		Long: `Checks every known H.264 encoder element with gst-inspect-1.0 and prints which ones are ` +
			`installed and which one the publishers would select.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := signalContext()
			defer cancel()

			report, err := encoders.Probe(ctx, encoders.InspectProber{})
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				os.Exit(1)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				_ = enc.Encode(report)
				return
			}

			rows := make([][]string, 0, len(report.Encoders))
			for _, a := range report.Encoders {
				rows = append(rows, []string{
					a.Profile.Element,
					a.Profile.Description,
					strconv.FormatBool(a.Profile.HWAccel),
					strconv.FormatBool(a.Available),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Encoder", "Description", "Hardware", "Available"}, rows))
			fmt.Fprintf(out, "Selected: %s (%s)\n", report.Selected.Element, report.Selected.Description)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}
