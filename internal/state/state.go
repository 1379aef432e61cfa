// Package state manages persisted controller state for nfops: one-time
// operation markers keyed by unit, and the last reported status per unit.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Marker records that a one-time operation completed for a unit.
type Marker struct {
	CompletedAt time.Time `json:"completed_at"`
}

// UnitStatus is the last status reported for a unit. It is informational
// only and never used as reconciliation input.
type UnitStatus struct {
	State     string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State holds persisted state for all units.
type State struct {
	Markers  map[string]Marker     `json:"markers"`
	Statuses map[string]UnitStatus `json:"statuses,omitempty"`
}

// Load reads the state file from disk. Returns an empty state if the file does not exist.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{
				Markers:  make(map[string]Marker),
				Statuses: make(map[string]UnitStatus),
			}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	s := &State{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	if s.Markers == nil {
		s.Markers = make(map[string]Marker)
	}

	if s.Statuses == nil {
		s.Statuses = make(map[string]UnitStatus)
	}

	return s, nil
}

// Save writes the state to disk, creating parent directories as needed.
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// MarkerKey builds the key for a unit's one-time operation.
func MarkerKey(unit, operation string) string {
	return unit + "/" + operation
}

// HasMarker reports whether the operation has completed for the unit.
func (s *State) HasMarker(unit, operation string) bool {
	_, ok := s.Markers[MarkerKey(unit, operation)]
	return ok
}

// SetMarker records completion of the operation for the unit.
func (s *State) SetMarker(unit, operation string, at time.Time) {
	if s.Markers == nil {
		s.Markers = make(map[string]Marker)
	}
	s.Markers[MarkerKey(unit, operation)] = Marker{CompletedAt: at}
}

// ClearMarkers removes all markers recorded for a unit and returns the
// operations that were cleared.
func (s *State) ClearMarkers(unit string) []string {
	prefix := unit + "/"
	var cleared []string
	for key := range s.Markers {
		if strings.HasPrefix(key, prefix) {
			cleared = append(cleared, strings.TrimPrefix(key, prefix))
			delete(s.Markers, key)
		}
	}
	sort.Strings(cleared)
	return cleared
}

// SetStatus records the latest status reported for a unit.
func (s *State) SetStatus(unit string, st UnitStatus) {
	if s.Statuses == nil {
		s.Statuses = make(map[string]UnitStatus)
	}
	s.Statuses[unit] = st
}

// GetStatus returns the latest status for a unit.
// The second return value is false if no status was recorded.
func (s *State) GetStatus(unit string) (UnitStatus, bool) {
	st, ok := s.Statuses[unit]
	return st, ok
}

// File is a State bound to its path. It persists on every mutation and is
// safe for concurrent use.
type File struct {
	mu    sync.Mutex
	path  string
	state *State
	now   func() time.Time
}

// Open loads the state file at path.
func Open(path string) (*File, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &File{path: path, state: s, now: time.Now}, nil
}

// Done implements the marker store used for one-time operations.
func (f *File) Done(unit, operation string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.HasMarker(unit, operation)
}

// Mark records and persists a completed operation.
func (f *File) Mark(unit, operation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.SetMarker(unit, operation, f.now())
	return f.state.Save(f.path)
}

// Reset clears and persists all markers for a unit.
func (f *File) Reset(unit string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cleared := f.state.ClearMarkers(unit)
	if len(cleared) == 0 {
		return nil, nil
	}
	return cleared, f.state.Save(f.path)
}

// RecordStatus persists the latest status reported for a unit.
func (f *File) RecordStatus(unit, state, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.SetStatus(unit, UnitStatus{State: state, Message: message, UpdatedAt: f.now()})
	return f.state.Save(f.path)
}

// Statuses returns a copy of all recorded statuses.
func (f *File) Statuses() map[string]UnitStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]UnitStatus, len(f.state.Statuses))
	for k, v := range f.state.Statuses {
		out[k] = v
	}
	return out
}
