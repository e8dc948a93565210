package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fcclab/streamlab/internal/api/models"
	"github.com/fcclab/streamlab/internal/version"
)

// APIError is an error response of the viewer API.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// Client calls the viewer API of a running service.
type Client struct {
	base     string
	user     string
	password string
	http     *http.Client
}

// NewClient returns a client for the service at base, e.g. "http://127.0.0.1:8090".
func NewClient(base, user, password string) *Client {
	return &Client{
		base:     strings.TrimRight(base, "/"),
		user:     user,
		password: password,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Viewer fetches the viewer status.
func (c *Client) Viewer(ctx context.Context) (models.ViewerData, error) {
	var out models.ViewerData
	err := c.do(ctx, http.MethodGet, "/api/viewer", nil, &out)
	return out, err
}

// Settings fetches the configured streams.
func (c *Client) Settings(ctx context.Context) (models.SettingsData, error) {
	var out models.SettingsData
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out)
	return out, err
}

// Open selects and opens the stream at index.
func (c *Client) Open(ctx context.Context, index int) (models.ViewerData, error) {
	var out models.ViewerData
	err := c.do(ctx, http.MethodPost, "/api/viewer/open", models.OpenRequestData{Index: &index}, &out)
	return out, err
}

// Close stops playback.
func (c *Client) Close(ctx context.Context) (models.ViewerData, error) {
	var out models.ViewerData
	err := c.do(ctx, http.MethodPost, "/api/viewer/close", nil, &out)
	return out, err
}

// StartRecording records to a timestamped file on the service host.
func (c *Client) StartRecording(ctx context.Context) (models.ViewerData, error) {
	var out models.ViewerData
	err := c.do(ctx, http.MethodPost, "/api/viewer/recording", models.RecordRequestData{}, &out)
	return out, err
}

// StopRecording finalizes the active recording.
func (c *Client) StopRecording(ctx context.Context) (models.ViewerData, error) {
	var out models.ViewerData
	err := c.do(ctx, http.MethodDelete, "/api/viewer/recording", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
