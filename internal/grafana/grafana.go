// Package grafana waits for a Grafana instance to become healthy and
// imports dashboard definitions through its HTTP API.
package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/metrics"
	"github.com/fcclab/streamlab/internal/version"
)

// ErrNotHealthy is returned when Grafana did not answer its health check in time.
var ErrNotHealthy = errors.New("grafana not ready")

// Defaults for the health wait and imports.
const (
	DefaultHealthWait     = 60 * time.Second
	DefaultHealthInterval = 2 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
	DefaultImportTimeout  = 30 * time.Second
)

// Config describes the Grafana endpoint.
type Config struct {
	URL      string
	User     string
	Password string

	HealthWait     time.Duration
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	ImportTimeout  time.Duration
}

// Result summarizes an import run.
type Result struct {
	Imported int
	Failed   []string
}

// Provisioner talks to one Grafana instance.
type Provisioner struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New returns a provisioner for cfg, filling unset durations with defaults.
func New(cfg Config) *Provisioner {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.HealthWait <= 0 {
		cfg.HealthWait = DefaultHealthWait
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = DefaultImportTimeout
	}
	return &Provisioner{
		cfg:    cfg,
		client: &http.Client{},
		logger: logging.GetLogger("grafana"),
	}
}

// WaitHealthy polls /api/health until it answers 200 or the wait expires.
func (p *Provisioner) WaitHealthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.HealthWait)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(p.cfg.HealthInterval), 1)
	url := p.cfg.URL + "/api/health"
	for {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w after %s", ErrNotHealthy, p.cfg.HealthWait)
		}
		err := p.checkHealth(ctx, url)
		if err == nil {
			p.logger.Info("Grafana is ready", "url", p.cfg.URL)
			return nil
		}
		p.logger.Info("Waiting for Grafana", "error", err)
	}
}

func (p *Provisioner) checkHealth(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.HealthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

// ImportDir imports every *.json file in dir in name order. A failing file
// is logged and counted; it does not stop the run. A missing dir imports
// nothing.
func (p *Provisioner) ImportDir(ctx context.Context, dir string) (Result, error) {
	var res Result
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("No dashboards dir", "dir", dir)
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("read dashboards dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		path := filepath.Join(dir, name)
		title, uid, err := p.ImportFile(ctx, path)
		if err != nil {
			metrics.IncDashboardImport("error")
			p.logger.Error("Dashboard import failed", "file", path, "error", err)
			res.Failed = append(res.Failed, name)
			continue
		}
		metrics.IncDashboardImport("ok")
		p.logger.Info("Imported dashboard", "title", title, "uid", uid)
		res.Imported++
	}
	p.logger.Info("Dashboard import done", "imported", res.Imported, "failed", len(res.Failed))
	return res, nil
}

// ImportFile posts one dashboard with overwrite set and its id removed.
func (p *Provisioner) ImportFile(ctx context.Context, path string) (title, uid string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	var dashboard map[string]any
	if err := json.Unmarshal(data, &dashboard); err != nil {
		return "", "", fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	delete(dashboard, "id")
	title, _ = dashboard["title"].(string)
	if title == "" {
		title = path
	}

	body, err := json.Marshal(map[string]any{"dashboard": dashboard, "overwrite": true})
	if err != nil {
		return "", "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ImportTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/api/dashboards/db", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.SetBasicAuth(p.cfg.User, p.cfg.Password)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", "", fmt.Errorf("%d %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		UID string `json:"uid"`
	}
	if json.Unmarshal(respBody, &result) != nil || result.UID == "" {
		result.UID = "?"
	}
	return title, result.UID, nil
}
