// Package process runs external GStreamer tools as subprocesses.
//
// Process wraps os/exec for one long-running command such as
// gst-launch-1.0:
//   - Cancellation through context: SIGINT first, SIGKILL after a timeout
//   - Output streaming with pluggable log-level parsing
//   - Loop mode that restarts the command after each clean exit
//
// Probe runs short-lived inspection commands (gst-inspect-1.0) and returns
// their combined output.
//
//	proc := process.New("publish-file", args, logger,
//		process.WithLogParser(process.ParseLaunchLine))
//	err := proc.Loop(ctx, process.LoopOptions{Loop: true})
package process
