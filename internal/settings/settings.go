// Package settings manages agent-desk's own settings document (by default
// ~/.agent-desk/settings.json): an opaque YAML document the indicator UI
// reads and writes through /api/settings, and that a human may hand-edit
// outside agent-desk entirely. The hook CLI does not read it. agent-desk treats its
// contents as an untyped blob — it never interprets individual keys — and
// re-broadcasts a "settings_changed" SSE frame whenever the file changes,
// whether the change came from this process's own Write or from an
// external editor.
//
// This is deliberately separate from internal/common/config, which loads
// agent-desk's own typed startup configuration once and never watches it.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ZAKERR/agent-desk/internal/common/logger"
)

// Store owns the on-disk settings file and, once Watch is called, a
// debounce-free fsnotify watcher on it.
type Store struct {
	path string
	log  *logger.Logger

	mu      sync.RWMutex
	current map[string]any

	watcher *fsnotify.Watcher
	onChange func(map[string]any)
}

// Open loads the settings file if it exists, or starts from an empty
// document if it doesn't — a missing settings file is not an error, the
// indicator UI creates it on first save.
func Open(path string, log *logger.Logger) (*Store, error) {
	s := &Store{path: path, log: log, current: map[string]any{}}
	if err := s.reload(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading settings file: %w", err)
	}
	return s, nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing settings file: %w", err)
	}
	s.mu.Lock()
	s.current = doc
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current settings document.
func (s *Store) Get() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.current))
	for k, v := range s.current {
		out[k] = v
	}
	return out
}

// Set replaces the settings document and persists it to disk.
func (s *Store) Set(doc map[string]any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	s.mu.Lock()
	s.current = doc
	s.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watcher on the settings file's directory
// (fsnotify can't watch a single not-yet-existing file, so the directory
// is watched and events are filtered by name) and invokes onChange with
// the freshly reloaded document every time the file is written, whether
// by this process or externally. It runs until stop is closed.
func (s *Store) Watch(onChange func(map[string]any), stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	s.watcher = watcher
	s.onChange = onChange

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching settings directory: %w", err)
	}

	go s.watchLoop(stop)
	return nil
}

func (s *Store) watchLoop(stop <-chan struct{}) {
	defer s.watcher.Close()
	name := filepath.Base(s.path)

	for {
		select {
		case <-stop:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if err := s.reload(); err != nil {
				if !os.IsNotExist(err) {
					s.log.WithError(err).Warn("settings reload failed")
				}
				continue
			}
			if s.onChange != nil {
				s.onChange(s.Get())
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.WithError(err).Warn("settings watcher error")
		}
	}
}
