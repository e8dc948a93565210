package led

import "log/slog"

// noop implements Controller for systems without a usable LED.
type noop struct {
	logger *slog.Logger
}

func newNoop(logger *slog.Logger) *noop {
	return &noop{logger: logger}
}

func (n *noop) Name() string { return "" }

// Set logs the request only.
func (n *noop) Set(pattern Pattern) error {
	n.logger.Debug("LED control not available (no-op)", "pattern", pattern)
	return nil
}
