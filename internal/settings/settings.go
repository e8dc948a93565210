// Package settings persists the viewer's stream list, selected stream and
// window geometry as JSON. Missing keys are filled from a bundled default
// file and malformed files never fail a load.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Default geometry used when the stored one is missing or off screen.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// ErrIndexOutOfRange is returned by SetURLIndex for an unknown entry.
var ErrIndexOutOfRange = errors.New("url index out of range")

// Known keys of the settings object.
const (
	keyURLs         = "urls"
	keyURLIndex     = "url_index"
	keyWindowX      = "window_x"
	keyWindowY      = "window_y"
	keyWindowWidth  = "window_width"
	keyWindowHeight = "window_height"
)

// Stream is one selectable stream.
type Stream struct {
	Name string `json:"name" example:"Front camera" doc:"Display name"`
	URL  string `json:"url" example:"rtsp://192.168.1.10:8554/front" doc:"RTSP URL"`
}

// Settings is the persisted viewer configuration. Keys it does not know are
// kept and written back unchanged.
type Settings struct {
	URLs         []Stream
	URLIndex     int
	WindowX      *int
	WindowY      *int
	WindowWidth  *int
	WindowHeight *int

	extra map[string]json.RawMessage
}

// Screen is the display area window geometry is validated against.
type Screen struct {
	Width  int
	Height int
}

// Geometry is a window position and size.
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Builtin returns the settings used when no default file is available.
func Builtin() *Settings {
	return &Settings{URLs: []Stream{}}
}

// Selected returns the stream at URLIndex.
func (s *Settings) Selected() (Stream, bool) {
	if s.URLIndex < 0 || s.URLIndex >= len(s.URLs) {
		return Stream{}, false
	}
	return s.URLs[s.URLIndex], true
}

// SetURLIndex selects a stream.
func (s *Settings) SetURLIndex(i int) error {
	if i < 0 || i >= len(s.URLs) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.URLs))
	}
	s.URLIndex = i
	return nil
}

// Geometry returns the stored geometry when it lies on screen, otherwise a
// default-sized window centered on screen.
func (s *Settings) Geometry(screen Screen) Geometry {
	if s.WindowX != nil && s.WindowY != nil && s.WindowWidth != nil && s.WindowHeight != nil {
		g := Geometry{X: *s.WindowX, Y: *s.WindowY, Width: *s.WindowWidth, Height: *s.WindowHeight}
		if g.X >= 0 && g.X < screen.Width && g.Y >= 0 && g.Y < screen.Height && g.Width > 0 && g.Height > 0 {
			return g
		}
	}
	return Geometry{
		X:      max(0, (screen.Width-DefaultWidth)/2),
		Y:      max(0, (screen.Height-DefaultHeight)/2),
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
}

// SetGeometry stores a window geometry.
func (s *Settings) SetGeometry(g Geometry) {
	s.WindowX, s.WindowY = &g.X, &g.Y
	s.WindowWidth, s.WindowHeight = &g.Width, &g.Height
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.URLs = append([]Stream(nil), s.URLs...)
	c.WindowX, c.WindowY = clonePtr(s.WindowX), clonePtr(s.WindowY)
	c.WindowWidth, c.WindowHeight = clonePtr(s.WindowWidth), clonePtr(s.WindowHeight)
	if s.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(s.extra))
		for k, v := range s.extra {
			c.extra[k] = v
		}
	}
	return &c
}

func clonePtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MarshalJSON writes known keys and any preserved unknown keys.
func (s *Settings) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.extra)+6)
	for k, v := range s.extra {
		out[k] = v
	}
	urls := s.URLs
	if urls == nil {
		urls = []Stream{}
	}
	out[keyURLs] = urls
	out[keyURLIndex] = s.URLIndex
	out[keyWindowX] = s.WindowX
	out[keyWindowY] = s.WindowY
	out[keyWindowWidth] = s.WindowWidth
	out[keyWindowHeight] = s.WindowHeight
	return json.Marshal(out)
}

// UnmarshalJSON reads a settings object. URL entries missing a name or a
// url are dropped.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var errs []error
	for k, err := range s.fromRaw(raw) {
		errs = append(errs, fmt.Errorf("%s: %w", k, err))
	}
	return errors.Join(errs...)
}

// fromRaw decodes every key it can and returns the keys whose values
// have the wrong type. Those keys keep their zero value.
func (s *Settings) fromRaw(raw map[string]json.RawMessage) map[string]error {
	*s = Settings{URLs: []Stream{}}
	var bad map[string]error
	for k, v := range raw {
		if err := s.setKey(k, v); err != nil {
			if bad == nil {
				bad = map[string]error{}
			}
			bad[k] = err
		}
	}
	return bad
}

// setKey decodes one key. The field is left unchanged on error.
func (s *Settings) setKey(k string, v json.RawMessage) error {
	switch k {
	case keyURLs:
		s.URLs = validStreams(v)
	case keyURLIndex:
		idx := 0
		if err := decodeNullable(v, &idx); err != nil {
			return err
		}
		s.URLIndex = idx
	case keyWindowX, keyWindowY, keyWindowWidth, keyWindowHeight:
		var n *int
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		switch k {
		case keyWindowX:
			s.WindowX = n
		case keyWindowY:
			s.WindowY = n
		case keyWindowWidth:
			s.WindowWidth = n
		default:
			s.WindowHeight = n
		}
	default:
		if s.extra == nil {
			s.extra = map[string]json.RawMessage{}
		}
		s.extra[k] = v
	}
	return nil
}

func decodeNullable(v json.RawMessage, dst *int) error {
	if string(v) == "null" {
		return nil
	}
	return json.Unmarshal(v, dst)
}

// validStreams keeps list entries that are objects carrying both a name and
// a url string. Anything that is not a list yields an empty result.
func validStreams(v json.RawMessage) []Stream {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return []Stream{}
	}
	out := make([]Stream, 0, len(items))
	for _, item := range items {
		var entry map[string]json.RawMessage
		if json.Unmarshal(item, &entry) != nil {
			continue
		}
		var st Stream
		if json.Unmarshal(entry["name"], &st.Name) != nil || json.Unmarshal(entry["url"], &st.URL) != nil {
			continue
		}
		if st.Name == "" || st.URL == "" {
			continue
		}
		out = append(out, st)
	}
	return out
}
