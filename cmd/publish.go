package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fcclab/streamlab/internal/devices"
	"github.com/fcclab/streamlab/internal/encoders"
	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/media/gstmedia"
	"github.com/fcclab/streamlab/internal/pipeline"
	"github.com/fcclab/streamlab/internal/publisher"
)

// Runner kinds for the publish command.
const (
	runnerGraph  = "graph"
	runnerLaunch = "launch"
)

type publishFlags struct {
	device      string
	server      string
	port        int
	format      string
	resolution  string
	topic       string
	protocol    string
	timeout     int
	listDevices bool
	runner      string
	encoder     string
}

// CreatePublishCmd creates the camera publisher command.
func CreatePublishCmd() *cobra.Command {
	var f publishFlags

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a V4L2 camera to the media server",
		Long: `Captures a V4L2 device, encodes it with the best available H.264 encoder and pushes it ` +
			`to the media server over RTMP or RTP/UDP. The stream is restarted after errors and after ` +
			`five seconds without outgoing data.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := signalContext()
			defer cancel()

			if f.listDevices {
				if err := printDevices(ctx, cmd); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
					os.Exit(1)
				}
				return
			}

			if err := runPublish(ctx, cmd, f); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVarP(&f.listDevices, "list-devices", "l", false, "List available video devices and exit")
	cmd.Flags().StringVarP(&f.device, "device", "d", "/dev/video4", "Video device path")
	cmd.Flags().StringVarP(&f.server, "server", "s", "127.0.0.1", "Media server host")
	cmd.Flags().IntVarP(&f.port, "port", "p", pipeline.DefaultRTMPPort, "Port (UDP: 8000, RTMP: 1935)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "UYVY", "Raw video format")
	cmd.Flags().StringVarP(&f.resolution, "resolution", "r", "1280x720", "Resolution WIDTHxHEIGHT")
	cmd.Flags().StringVarP(&f.topic, "topic", "t", "/stream/go2/front", "Stream path on the server")
	cmd.Flags().StringVar(&f.protocol, "protocol", string(pipeline.ProtocolRTMP), "Protocol (udp, rtmp)")
	cmd.Flags().IntVar(&f.timeout, "timeout", pipeline.DefaultRTMPTimeout, "RTMP connection timeout in seconds")
	cmd.Flags().StringVar(&f.runner, "runner", runnerGraph, "Pipeline runner (graph, launch)")
	cmd.Flags().StringVar(&f.encoder, "encoder", "", "Override encoder selection (e.g. x264enc, vaapih264enc)")

	return cmd
}

func runPublish(ctx context.Context, cmd *cobra.Command, f publishFlags) error {
	logger := logging.GetLogger("publisher")

	if _, err := os.Stat(f.device); err != nil {
		return fmt.Errorf("device %s not found", f.device)
	}
	protocol, err := pipeline.ParseProtocol(f.protocol)
	if err != nil {
		return err
	}
	width, height, err := pipeline.ParseResolution(f.resolution)
	if err != nil {
		return err
	}
	profile, err := selectEncoder(ctx, f.encoder)
	if err != nil {
		return err
	}

	params := pipeline.Params{
		Source:      f.device,
		Kind:        pipeline.SourceDevice,
		Format:      f.format,
		Width:       width,
		Height:      height,
		Host:        f.server,
		Port:        pipeline.EffectivePort(protocol, f.port),
		Path:        f.topic,
		Protocol:    protocol,
		RTMPTimeout: f.timeout,
		Encoder:     profile,
	}
	description, err := pipeline.Build(params)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nPipeline: %s\n\n", description)

	var runner publisher.Runner
	switch f.runner {
	case runnerGraph:
		if !gstmedia.Available {
			logger.Warn("Built without GStreamer bindings, falling back to gst-launch-1.0")
			runner, err = publisher.NewLaunchRunner(description, params.Target())
			break
		}
		runner = publisher.NewGraphRunner(gstmedia.New(), description, params.Target())
	case runnerLaunch:
		runner, err = publisher.NewLaunchRunner(description, params.Target())
	default:
		return fmt.Errorf("unknown runner %q (want %s or %s)", f.runner, runnerGraph, runnerLaunch)
	}
	if err != nil {
		return err
	}

	if err := runner.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nStopped by user.")
	return nil
}

// selectEncoder returns the named profile, or the best available one.
func selectEncoder(ctx context.Context, override string) (encoders.Profile, error) {
	if override != "" {
		p, ok := encoders.Lookup(override)
		if !ok {
			return encoders.Profile{}, fmt.Errorf("unknown encoder %q", override)
		}
		return p, nil
	}
	p, err := encoders.Select(ctx, &encoders.CachingProber{Prober: encoders.InspectProber{}})
	if errors.Is(err, encoders.ErrGStreamerMissing) {
		return encoders.Profile{}, fmt.Errorf("%w: install GStreamer first", err)
	}
	return p, err
}

func printDevices(ctx context.Context, cmd *cobra.Command) error {
	lister := devices.NewLister(devices.V4L2Ctl)
	found, err := lister.List(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nAvailable video devices and supported formats:")
	if len(found) == 0 {
		fmt.Fprintln(out, "No video devices found.")
		return nil
	}
	rows := make([][]string, 0, len(found))
	for _, d := range found {
		rows = append(rows, []string{d.Path, d.Summary()})
	}
	fmt.Fprintln(out, renderTable([]string{"Device", "Supported Formats"}, rows))
	return nil
}
