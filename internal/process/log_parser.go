package process

import "strings"

// ParseLaunchLine picks a log level for a line printed by gst-launch-1.0.
//
// gst-launch reports problems as "ERROR: from element ..." and
// "WARNING: from element ...", followed by indented "Additional debug
// info:" lines. Progress lines ("Setting pipeline to PLAYING ...") stay info
// and clock/latency chatter is demoted to debug.
func ParseLaunchLine(line string) (level, msg string) {
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(trimmed, "ERROR:"):
		return "error", strings.TrimSpace(strings.TrimPrefix(trimmed, "ERROR:"))
	case strings.HasPrefix(trimmed, "WARNING:"):
		return "warning", strings.TrimSpace(strings.TrimPrefix(trimmed, "WARNING:"))
	case strings.HasPrefix(trimmed, "Additional debug info:"):
		return "debug", trimmed
	case strings.HasPrefix(trimmed, "Redistribute latency"),
		strings.HasPrefix(trimmed, "New clock:"),
		strings.HasPrefix(trimmed, "Progress:"),
		strings.HasPrefix(trimmed, "Pipeline is PREROLL"),
		strings.HasPrefix(trimmed, "Prerolled"):
		return "debug", trimmed
	case line != trimmed && strings.HasPrefix(line, " "):
		return "debug", trimmed
	}
	return "info", trimmed
}
