// Package tui is a terminal front end for a running viewer service. It
// drives the service through its HTTP API and polls for status.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fcclab/streamlab/internal/api/models"
	"github.com/fcclab/streamlab/internal/viewer"
)

const (
	pollInterval = time.Second
	errorTimeout = 5 * time.Second
	callTimeout  = 15 * time.Second
)

// API is the part of the viewer API the TUI uses.
type API interface {
	Viewer(ctx context.Context) (models.ViewerData, error)
	Settings(ctx context.Context) (models.SettingsData, error)
	Open(ctx context.Context, index int) (models.ViewerData, error)
	Close(ctx context.Context) (models.ViewerData, error)
	StartRecording(ctx context.Context) (models.ViewerData, error)
	StopRecording(ctx context.Context) (models.ViewerData, error)
}

// Model is the root bubbletea model.
type Model struct {
	api API

	connected bool
	status    models.ViewerData
	urls      []string
	names     []string
	selected  int

	errorMessage string
	width        int
}

// New creates a model talking to api.
func New(api API) Model {
	return Model{
		api:    api,
		status: models.ViewerData{State: viewer.StateClosed.String(), Controls: viewer.ControlsFor(viewer.StateClosed, false)},
	}
}

// Init fetches settings and status and starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(settingsCmd(m.api), viewerCmd(m.api), pollCmd())
}

func call(api API, fn func(ctx context.Context) (models.ViewerData, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		v, err := fn(ctx)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return ViewerMsg{Viewer: v}
	}
}

func viewerCmd(api API) tea.Cmd {
	return call(api, api.Viewer)
}

func settingsCmd(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		s, err := api.Settings(ctx)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return SettingsMsg{Settings: s}
	}
}

func pollCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return PollTickMsg{}
	})
}

func clearErrorCmd() tea.Cmd {
	return tea.Tick(errorTimeout, func(time.Time) tea.Msg {
		return ClearErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case ViewerMsg:
		m.connected = true
		m.status = msg.Viewer
		return m, nil

	case SettingsMsg:
		m.names = m.names[:0]
		m.urls = m.urls[:0]
		for _, s := range msg.Settings.URLs {
			m.names = append(m.names, s.Name)
			m.urls = append(m.urls, s.URL)
		}
		m.selected = msg.Settings.URLIndex
		if m.selected >= len(m.names) {
			m.selected = max(0, len(m.names)-1)
		}
		return m, nil

	case ErrorMsg:
		m.errorMessage = msg.Err.Error()
		return m, clearErrorCmd()

	case ClearErrorMsg:
		m.errorMessage = ""
		return m, nil

	case PollTickMsg:
		return m, tea.Batch(viewerCmd(m.api), pollCmd())
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		return m, tea.Quit

	case KeyUp, KeyK:
		if m.status.Controls.SelectEnabled && m.selected > 0 {
			m.selected--
		}
		return m, nil

	case KeyDown, KeyJ:
		if m.status.Controls.SelectEnabled && m.selected < len(m.names)-1 {
			m.selected++
		}
		return m, nil

	case KeyEnter, KeySpace:
		if !m.status.Controls.ButtonEnabled {
			return m, nil
		}
		if m.status.State == viewer.StateClosed.String() {
			if len(m.names) == 0 {
				return m, nil
			}
			index := m.selected
			return m, call(m.api, func(ctx context.Context) (models.ViewerData, error) {
				return m.api.Open(ctx, index)
			})
		}
		return m, call(m.api, m.api.Close)

	case KeyRecord:
		if !m.status.Controls.RecordEnabled {
			return m, nil
		}
		if m.status.Recording != nil {
			return m, call(m.api, m.api.StopRecording)
		}
		return m, call(m.api, m.api.StartRecording)

	case KeyRefresh:
		return m, tea.Batch(settingsCmd(m.api), viewerCmd(m.api))
	}
	return m, nil
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("streamlab viewer"))
	if !m.connected {
		b.WriteString(dimStyle.Render("  (connecting to service...)"))
	}
	b.WriteString("\n\n")

	if len(m.names) == 0 {
		b.WriteString(dimStyle.Render("  no streams configured"))
		b.WriteString("\n")
	}
	for i, name := range m.names {
		line := fmt.Sprintf("  %s  %s", name, dimStyle.Render(m.urls[i]))
		if i == m.selected {
			line = selectedStyle.Render("> "+name) + "  " + dimStyle.Render(m.urls[i])
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	if m.errorMessage != "" {
		b.WriteString(errorStyle.Render(m.errorMessage))
		b.WriteString("\n")
	}

	width := m.width
	if width <= 0 {
		width = 60
	}
	b.WriteString(dividerStyle.Render(strings.Repeat("─", width)))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderStatus() string {
	style, ok := stateStyles[m.status.State]
	if !ok {
		style = dimStyle
	}
	s := "State: " + style.Render(m.status.State)
	if m.status.URL != "" {
		s += "  " + dimStyle.Render(m.status.URL)
	}
	if m.status.Retries > 0 {
		s += dimStyle.Render(fmt.Sprintf("  (retry %d)", m.status.Retries))
	}
	if rec := m.status.Recording; rec != nil {
		elapsed := time.Since(rec.StartedAt).Round(time.Second)
		s += "\n" + recordingDotStyle.Render("● REC") + " " + rec.Path + dimStyle.Render(" "+elapsed.String())
	}
	return s
}

func (m Model) renderFooter() string {
	item := func(key, desc string, enabled bool) string {
		if !enabled {
			return dimStyle.Render(key + " " + desc)
		}
		return footerKeyStyle.Render(key) + " " + footerDescStyle.Render(desc)
	}
	c := m.status.Controls
	return strings.Join([]string{
		item("↑/↓", "select", c.SelectEnabled),
		item("enter", strings.ToLower(c.ButtonLabel), c.ButtonEnabled),
		item("r", strings.ToLower(c.RecordLabel), c.RecordEnabled),
		item("q", "quit", true),
	}, "  ")
}

// Run starts the TUI on the alternate screen and blocks until the user quits.
func Run(api API) error {
	_, err := tea.NewProgram(New(api), tea.WithAltScreen()).Run()
	return err
}
