package tui

import "github.com/fcclab/streamlab/internal/api/models"

// ViewerMsg carries a fresh viewer status.
type ViewerMsg struct {
	Viewer models.ViewerData
}

// SettingsMsg carries the configured streams.
type SettingsMsg struct {
	Settings models.SettingsData
}

// ErrorMsg reports a failed API call.
type ErrorMsg struct {
	Err error
}

// PollTickMsg triggers a status refresh.
type PollTickMsg struct{}

// ClearErrorMsg clears a shown error after a timeout.
type ClearErrorMsg struct{}
