// Package influx clears InfluxDB v2 buckets.
package influx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/fcclab/streamlab/internal/logging"
)

// ErrUnhealthy is returned when the server health check does not pass.
var ErrUnhealthy = errors.New("influxdb not healthy")

// Defaults match the lab's docker compose setup.
const (
	DefaultURL   = "http://localhost:8086"
	DefaultOrg   = "fcclab"
	DefaultToken = "fcclab_token"
)

// epoch is the start of the delete range.
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Config addresses one InfluxDB organization.
type Config struct {
	URL   string
	Org   string
	Token string
}

// Clearer deletes all points of a bucket.
type Clearer struct {
	cfg    Config
	client influxdb2.Client
	logger *slog.Logger
	now    func() time.Time
}

// New connects a client for cfg. Call Close when done.
func New(cfg Config) *Clearer {
	return &Clearer{
		cfg:    cfg,
		client: influxdb2.NewClient(cfg.URL, cfg.Token),
		logger: logging.GetLogger("influx"),
		now:    time.Now,
	}
}

// Close releases the client.
func (c *Clearer) Close() {
	c.client.Close()
}

// Clear checks server health and deletes everything in bucket from the
// epoch until now.
func (c *Clearer) Clear(ctx context.Context, bucket string) error {
	c.logger.Info("Connecting to InfluxDB", "url", c.cfg.URL)
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if health.Status != domain.HealthCheckStatusPass {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("%w: status %s %s", ErrUnhealthy, health.Status, msg)
	}
	c.logger.Info("Connected to InfluxDB", "org", c.cfg.Org)

	stop := c.now().UTC()
	c.logger.Info("Clearing bucket", "bucket", bucket, "start", epoch, "stop", stop)
	if err := c.client.DeleteAPI().DeleteWithName(ctx, c.cfg.Org, bucket, epoch, stop, ""); err != nil {
		return fmt.Errorf("clear bucket %q: %w", bucket, err)
	}
	c.logger.Info("Bucket cleared", "bucket", bucket)
	return nil
}

// Confirm asks on out whether bucket should be cleared and reads the
// answer from in. Only "y" and "yes" confirm.
func Confirm(in io.Reader, out io.Writer, cfg Config, bucket string) (bool, error) {
	fmt.Fprintln(out, "==========================================")
	fmt.Fprintf(out, "Clearing InfluxDB bucket: %s\n", bucket)
	fmt.Fprintln(out, "==========================================")
	fmt.Fprintf(out, "Organization: %s\n", cfg.Org)
	fmt.Fprintf(out, "InfluxDB URL: %s\n\n", cfg.URL)
	fmt.Fprintf(out, "WARNING: This will delete ALL data in bucket '%s'\n", bucket)
	fmt.Fprint(out, "Are you sure you want to continue? (y/N): ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
