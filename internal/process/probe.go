package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrNotFound is returned by Probe when the binary is not on PATH.
var ErrNotFound = errors.New("executable not found")

// DefaultProbeTimeout bounds a single Probe call.
const DefaultProbeTimeout = 5 * time.Second

// Probe runs a short-lived command and returns its trimmed combined output.
// A non-zero exit is returned as *ExitError together with the output.
func Probe(ctx context.Context, name string, args ...string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err != nil {
		if ctx.Err() != nil {
			return output, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, &ExitError{Code: exitErr.ExitCode()}
		}
		return output, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}
