package influx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeInflux struct {
	status string

	mu      sync.Mutex
	query   string
	payload map[string]any
	token   string
}

func (f *fakeInflux) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		code := http.StatusOK
		if f.status != "pass" {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"name":"influxdb","message":"ready for queries and writes","status":"` + f.status + `","checks":[]}`))
	})
	mux.HandleFunc("/api/v2/delete", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.query = r.URL.RawQuery
		f.payload = body
		f.token = r.Header.Get("Authorization")
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func TestClear(t *testing.T) {
	fake := &fakeInflux{status: "pass"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := New(Config{URL: srv.URL, Org: "fcclab", Token: "secret"})
	defer c.Close()
	fixed := time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	if err := c.Clear(context.Background(), "telemetry"); err != nil {
		t.Fatal(err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !strings.Contains(fake.query, "bucket=telemetry") || !strings.Contains(fake.query, "org=fcclab") {
		t.Errorf("query = %q", fake.query)
	}
	if fake.token != "Token secret" {
		t.Errorf("authorization = %q", fake.token)
	}
	start, _ := time.Parse(time.RFC3339, fake.payload["start"].(string))
	stop, _ := time.Parse(time.RFC3339, fake.payload["stop"].(string))
	if !start.Equal(epoch) || !stop.Equal(fixed) {
		t.Errorf("range = %v..%v", start, stop)
	}
	if p, ok := fake.payload["predicate"]; ok && p != "" {
		t.Errorf("predicate = %v", p)
	}
}

func TestClearUnhealthy(t *testing.T) {
	fake := &fakeInflux{status: "fail"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := New(Config{URL: srv.URL, Org: "fcclab", Token: "secret"})
	defer c.Close()
	if err := c.Clear(context.Background(), "telemetry"); !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("expected ErrUnhealthy, got %v", err)
	}
	if fake.query != "" {
		t.Error("delete issued against unhealthy server")
	}
}

func TestConfirm(t *testing.T) {
	cfg := Config{URL: DefaultURL, Org: DefaultOrg}
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := Confirm(strings.NewReader(tt.input), &out, cfg, "fcclab")
		if err != nil {
			t.Fatalf("%q: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "delete ALL data in bucket 'fcclab'") {
			t.Errorf("prompt missing warning: %q", out.String())
		}
	}
}
