package models

import (
	"time"

	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/rtspprobe"
	"github.com/fcclab/streamlab/internal/settings"
	"github.com/fcclab/streamlab/internal/version"
	"github.com/fcclab/streamlab/internal/viewer"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Viewer models
type RecordingData struct {
	ID        string    `json:"id" example:"5b1f0c6e-8d7a-4a43-9f0e-2d4c6f1e9a21" doc:"Recording session ID"`
	Path      string    `json:"path" example:"recording_20250127_103000.mp4" doc:"Output file"`
	StartedAt time.Time `json:"started_at" doc:"When the recording started"`
}

type ViewerData struct {
	State     string          `json:"state" example:"open" enum:"closed,connecting,open" doc:"Stream state"`
	URL       string          `json:"url,omitempty" example:"rtsp://192.168.1.10:8554/front" doc:"Current stream URL"`
	Retries   int             `json:"retries" example:"0" doc:"Consecutive connection failures"`
	Recording *RecordingData  `json:"recording,omitempty" doc:"Active recording"`
	Controls  viewer.Controls `json:"controls" doc:"Control affordances for the current state"`
}

type ViewerResponse struct {
	Body ViewerData
}

type OpenRequestData struct {
	URL   string `json:"url,omitempty" example:"rtsp://192.168.1.10:8554/front" doc:"URL to open; wins over index"`
	Index *int   `json:"index,omitempty" example:"0" minimum:"0" doc:"Configured stream to select and open"`
}

type OpenRequest struct {
	Body OpenRequestData `required:"false"`
}

type RecordRequestData struct {
	Path string `json:"path,omitempty" example:"/data/run1.mp4" doc:"Output file; defaults to a timestamped name"`
}

type RecordRequest struct {
	Body RecordRequestData `required:"false"`
}

type ProbeRequest struct {
	URL string `query:"url" example:"rtsp://192.168.1.10:8554/front" doc:"URL to probe; defaults to the selected stream"`
}

type ProbeData struct {
	rtspprobe.Result
	HasVideo bool `json:"has_video" doc:"Whether an H.264 video track is announced"`
}

type ProbeResponse struct {
	Body ProbeData
}

// Settings models
type SettingsData struct {
	URLs     []settings.Stream `json:"urls" doc:"Configured streams"`
	URLIndex int               `json:"url_index" example:"0" doc:"Selected stream"`
}

type SettingsResponse struct {
	Body SettingsData
}

type SettingsRequest struct {
	Body SettingsData
}

// Log models
type LogsRequest struct {
	Limit int `query:"limit" default:"200" minimum:"0" maximum:"5000" doc:"Most recent entries to return, 0 for all"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Log entries, oldest first"`
	Count   int                `json:"count" example:"200" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
