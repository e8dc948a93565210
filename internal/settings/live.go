package settings

import "sync"

// Live holds the settings currently in effect for a running service.
type Live struct {
	store *Store

	mu      sync.RWMutex
	current *Settings
}

// NewLive loads the store once and serves the result.
func NewLive(store *Store) *Live {
	return &Live{store: store, current: store.Load()}
}

// Current returns a copy of the settings in effect.
func (l *Live) Current() *Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current.Clone()
}

// Update applies fn to a copy, saves it and makes it current. Nothing
// changes when fn fails. A failed save is logged by the store and the
// update still takes effect.
func (l *Live) Update(fn func(*Settings) error) (*Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	l.store.Save(next)
	l.current = next
	return next.Clone(), nil
}

// Reload replaces the current settings with ones read from disk.
func (l *Live) Reload(st *Settings) {
	l.mu.Lock()
	l.current = st.Clone()
	l.mu.Unlock()
}
