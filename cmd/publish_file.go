package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fcclab/streamlab/internal/encoders"
	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/pipeline"
	"github.com/fcclab/streamlab/internal/publisher"
)

type publishFileFlags struct {
	server   string
	port     int
	topic    string
	protocol string
	loop     bool
	encoder  string
}

// CreatePublishFileCmd creates the file publisher command.
func CreatePublishFileCmd() *cobra.Command {
	var f publishFileFlags

	cmd := &cobra.Command{
		Use:   "publish-file FILE",
		Short: "Publish a video file to the media server",
		Long: `Decodes a video file, re-encodes it to H.264 and pushes it to the media server through ` +
			`a gst-launch-1.0 subprocess. With --loop the file restarts whenever it ends; any failure ` +
			`stops the command with exit code 1.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext()
			defer cancel()

			if err := runPublishFile(ctx, cmd, args[0], f); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&f.server, "server", "s", "127.0.0.1", "Media server host")
	cmd.Flags().IntVarP(&f.port, "port", "p", pipeline.DefaultUDPPort, "Port (UDP: 8000, RTMP: 1935)")
	cmd.Flags().StringVarP(&f.topic, "topic", "t", "/stream/go2/front", "Stream path on the server")
	cmd.Flags().StringVar(&f.protocol, "protocol", string(pipeline.ProtocolUDP), "Protocol (udp, rtmp)")
	cmd.Flags().BoolVar(&f.loop, "loop", false, "Restart the file when it ends")
	cmd.Flags().StringVar(&f.encoder, "encoder", "", "Override encoder selection")

	return cmd
}

func runPublishFile(ctx context.Context, cmd *cobra.Command, file string, f publishFileFlags) error {
	logger := logging.GetLogger("publisher")

	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("video file %s not found", file)
	}
	gstVersion, err := encoders.CheckGStreamer(ctx)
	if err != nil {
		return fmt.Errorf("%w: install GStreamer first", err)
	}
	logger.Debug("GStreamer found", "version", firstLine(gstVersion))

	protocol, err := pipeline.ParseProtocol(f.protocol)
	if err != nil {
		return err
	}
	profile, err := selectEncoder(ctx, f.encoder)
	if err != nil {
		return err
	}
	params := pipeline.Params{
		Source:      file,
		Kind:        pipeline.SourceFile,
		Host:        f.server,
		Port:        pipeline.EffectivePort(protocol, f.port),
		Path:        f.topic,
		Protocol:    protocol,
		RTMPTimeout: pipeline.DefaultRTMPTimeout,
		Encoder:     profile,
	}
	description, err := pipeline.Build(params)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nStreaming %s to %s:%d\n", file, params.Host, params.Port)
	fmt.Fprintf(out, "Protocol: %s\n", strings.ToUpper(string(protocol)))
	fmt.Fprintf(out, "Topic/Path: %s\n", params.Path)
	if f.loop {
		fmt.Fprintln(out, "Loop: Enabled")
	}
	if protocol == pipeline.ProtocolRTMP {
		fmt.Fprintf(out, "\nRTMP stream URL: %s\n", params.RTMPURL())
	}
	fmt.Fprintf(out, "\nPipeline: %s\n\n", description)

	runner, err := publisher.NewFileRunner(description, f.loop)
	if err != nil {
		return err
	}
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("gstreamer pipeline: %w", err)
	}
	fmt.Fprintln(out, "\nStopping stream...")
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
