package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fcclab/streamlab/internal/logging"
)

// Store reads and writes the settings file next to its bundled default.
type Store struct {
	path        string
	defaultPath string
	logger      *slog.Logger
	mu          sync.Mutex
}

// NewStore returns a store for path. defaultPath may be empty.
func NewStore(path, defaultPath string) *Store {
	return &Store{
		path:        path,
		defaultPath: defaultPath,
		logger:      logging.GetLogger("settings"),
	}
}

// Path returns the active settings file.
func (s *Store) Path() string { return s.path }

// Load returns the active settings. A missing active file is seeded from
// the default file; missing or wrongly typed keys take the default's value;
// an unreadable or malformed active file yields the defaults. Load never fails.
func (s *Store) Load() *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seed()
	defaults := s.loadDefaults()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to read settings, using defaults", "path", s.path, "error", err)
		}
		return decodeOrBuiltin(defaults)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		s.logger.Warn("Malformed settings file, using defaults", "path", s.path, "error", err)
		return decodeOrBuiltin(defaults)
	}

	for k, v := range defaults {
		if _, ok := raw[k]; !ok {
			raw[k] = v
		}
	}

	out := &Settings{}
	for k, err := range out.fromRaw(raw) {
		s.logger.Warn("Invalid settings value, using default", "path", s.path, "key", k, "error", err)
		out.resetKey(k, defaults)
	}
	if len(out.URLs) == 0 {
		out.URLs = validStreams(defaults[keyURLs])
	}
	return out
}

// Save writes settings atomically. Failures are logged, never returned.
func (s *Store) Save(st *Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "    ")
	if err != nil {
		s.logger.Error("Failed to encode settings", "error", err)
		return
	}
	if err := writeAtomic(s.path, append(data, '\n')); err != nil {
		s.logger.Error("Failed to save settings", "path", s.path, "error", err)
		return
	}
	s.logger.Debug("Settings saved", "path", s.path, "urls", len(st.URLs), "url_index", st.URLIndex)
}

// LoadFile is a config.Watcher loader.
func (s *Store) LoadFile(string) (*Settings, error) {
	return s.Load(), nil
}

func (s *Store) seed() {
	if s.defaultPath == "" {
		return
	}
	if _, err := os.Stat(s.path); !errors.Is(err, fs.ErrNotExist) {
		return
	}
	info, err := os.Stat(s.defaultPath)
	if err != nil {
		return
	}
	data, err := os.ReadFile(s.defaultPath)
	if err == nil {
		err = writeAtomic(s.path, data, info.Mode().Perm())
	}
	if err != nil {
		s.logger.Warn("Failed to copy default settings", "from", s.defaultPath, "to", s.path, "error", err)
		return
	}
	s.logger.Info("Created settings from default", "from", s.defaultPath, "to", s.path)
}

// loadDefaults returns the default file's keys, or the builtin defaults
// when the file is absent or invalid.
func (s *Store) loadDefaults() map[string]json.RawMessage {
	if s.defaultPath != "" {
		data, err := os.ReadFile(s.defaultPath)
		if err == nil {
			var raw map[string]json.RawMessage
			if err = json.Unmarshal(data, &raw); err == nil && raw != nil {
				return raw
			}
		}
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to load default settings", "path", s.defaultPath, "error", err)
		}
	}
	return builtinRaw()
}

func builtinRaw() map[string]json.RawMessage {
	null := json.RawMessage("null")
	return map[string]json.RawMessage{
		keyURLs:         json.RawMessage("[]"),
		keyURLIndex:     json.RawMessage("0"),
		keyWindowX:      null,
		keyWindowY:      null,
		keyWindowWidth:  null,
		keyWindowHeight: null,
	}
}

func decodeOrBuiltin(raw map[string]json.RawMessage) *Settings {
	out := &Settings{}
	for k := range out.fromRaw(raw) {
		out.resetKey(k, builtinRaw())
	}
	return out
}

// resetKey decodes key from defaults, leaving the zero value when the
// default is missing or invalid too.
func (s *Settings) resetKey(key string, defaults map[string]json.RawMessage) {
	if v, ok := defaults[key]; ok && s.setKey(key, v) == nil {
		return
	}
	_ = s.setKey(key, builtinRaw()[key])
}

func writeAtomic(path string, data []byte, perm ...fs.FileMode) error {
	mode := fs.FileMode(0o644)
	if len(perm) > 0 {
		mode = perm[0]
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
