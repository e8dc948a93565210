package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fcclab/streamlab/internal/rtspprobe"
)

// CreateProbeCmd creates the RTSP probe command.
func CreateProbeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe URL",
		Short: "Issue an RTSP DESCRIBE and list the announced tracks",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext()
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
			defer cancelTimeout()

			result, err := rtspprobe.Describe(ctx, args[0])
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				os.Exit(1)
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(result.Tracks))
			for _, t := range result.Tracks {
				rows = append(rows, []string{
					t.Kind,
					t.Codec,
					strconv.FormatUint(uint64(t.ClockRate), 10),
					strconv.Itoa(int(t.PayloadType)),
					t.Fmtp,
				})
			}
			fmt.Fprintln(out, result.URL)
			fmt.Fprintln(out, renderTable([]string{"Kind", "Codec", "Clock", "PT", "Fmtp"}, rows))
			if !result.HasVideo() {
				fmt.Fprintln(out, "No H.264 video track announced")
				os.Exit(1)
			}
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "DESCRIBE timeout")

	return cmd
}
