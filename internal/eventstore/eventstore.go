// Package eventstore implements the append-only JSONL event log (spec.md
// §4.4) with an mtime/size-cached in-memory view so repeated reads in a
// busy polling loop cost zero I/O when the file hasn't changed.
package eventstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

// Store is the JSONL-backed append-only event log.
type Store struct {
	path string

	mu         sync.RWMutex
	events     []wire.Event
	lastMtime  int64
	lastSize   int64
	cacheValid bool
}

// New creates a Store backed by the given file path. The file and its
// parent directory are created lazily on first append.
func New(path string) *Store {
	return &Store{path: path}
}

// refreshCache re-reads the backing file only if its (mtime, size) changed
// since the last read. Bad lines are skipped rather than aborting the load.
// Must be called with mu held for write.
func (s *Store) refreshCache() {
	info, err := os.Stat(s.path)
	if err != nil {
		if !s.cacheValid {
			s.events = nil
			s.cacheValid = true
		}
		return
	}

	mtime := info.ModTime().UnixNano()
	size := info.Size()
	if s.cacheValid && mtime == s.lastMtime && size == s.lastSize {
		return
	}

	f, err := os.Open(s.path)
	if err != nil {
		return
	}
	defer f.Close()

	var events []wire.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e wire.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}

	s.events = events
	s.lastMtime = mtime
	s.lastSize = size
	s.cacheValid = true
}

// GetEvents returns all non-cleared events with ts >= after, reading from
// the cache unless the backing file has changed on disk.
func (s *Store) GetEvents(after float64) []wire.Event {
	s.mu.Lock()
	s.refreshCache()
	snapshot := make([]wire.Event, len(s.events))
	copy(snapshot, s.events)
	s.mu.Unlock()

	result := make([]wire.Event, 0, len(snapshot))
	for _, e := range snapshot {
		if e.Cleared {
			continue
		}
		if e.Ts >= after {
			result = append(result, e)
		}
	}
	return result
}

// AppendEvent appends a single event line, creating the parent directory if
// missing, then updates the in-memory cache and its (mtime, size) bookmark
// so the next GetEvents call is a cache hit.
func (s *Store) AppendEvent(e wire.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create event log dir: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	info, err := f.Stat()
	if err == nil {
		s.lastMtime = info.ModTime().UnixNano()
		s.lastSize = info.Size()
	} else {
		s.cacheValid = false
	}

	if s.cacheValid {
		s.events = append(s.events, e)
	}

	return nil
}

// ClearAll flips cleared=true on every in-memory entry and rewrites the
// file from that snapshot.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshCache()
	for i := range s.events {
		s.events[i].Cleared = true
	}
	return s.rewriteLocked()
}

// Compact drops entries older than maxAgeSecs relative to now, rewriting
// the file and preserving order.
func (s *Store) Compact(maxAgeSecs float64, now float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshCache()
	cutoff := now - maxAgeSecs
	kept := s.events[:0:0]
	for _, e := range s.events {
		if e.Ts >= cutoff {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return s.rewriteLocked()
}

// rewriteLocked performs a full rewrite of the backing file from the
// in-memory snapshot. Must be called with mu held.
func (s *Store) rewriteLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create event log dir: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp event log: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range s.events {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		_, _ = w.Write(data)
		_, _ = w.Write([]byte("\n"))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush event log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename event log: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		s.lastMtime = info.ModTime().UnixNano()
		s.lastSize = info.Size()
	} else {
		s.cacheValid = false
	}
	return nil
}
