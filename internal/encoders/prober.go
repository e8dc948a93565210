package encoders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fcclab/streamlab/internal/process"
)

// ErrGStreamerMissing is returned when the GStreamer tools are not installed.
var ErrGStreamerMissing = errors.New("gstreamer not found")

const inspectBinary = "gst-inspect-1.0"

// Prober reports whether an element factory is registered.
type Prober interface {
	HasElement(ctx context.Context, element string) (bool, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, element string) (bool, error)

// HasElement calls f.
func (f ProberFunc) HasElement(ctx context.Context, element string) (bool, error) {
	return f(ctx, element)
}

// InspectProber asks gst-inspect-1.0 about each element.
type InspectProber struct{}

// HasElement runs "gst-inspect-1.0 <element>"; exit status 0 means present.
func (InspectProber) HasElement(ctx context.Context, element string) (bool, error) {
	_, err := process.Probe(ctx, inspectBinary, element)
	if err == nil {
		return true, nil
	}
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	if errors.Is(err, process.ErrNotFound) {
		return false, ErrGStreamerMissing
	}
	return false, err
}

// CheckGStreamer verifies that gst-inspect-1.0 runs and returns its version line.
func CheckGStreamer(ctx context.Context) (string, error) {
	out, err := process.Probe(ctx, inspectBinary, "--version")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGStreamerMissing, err)
	}
	return out, nil
}

// CachingProber memoizes another prober's answers.
type CachingProber struct {
	Prober Prober

	mu    sync.Mutex
	cache map[string]bool
}

// HasElement returns the cached answer or asks the wrapped prober.
func (c *CachingProber) HasElement(ctx context.Context, element string) (bool, error) {
	c.mu.Lock()
	if ok, hit := c.cache[element]; hit {
		c.mu.Unlock()
		return ok, nil
	}
	c.mu.Unlock()

	ok, err := c.Prober.HasElement(ctx, element)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if c.cache == nil {
		c.cache = make(map[string]bool)
	}
	c.cache[element] = ok
	c.mu.Unlock()
	return ok, nil
}
