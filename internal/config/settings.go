package config

import (
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings holds the live configuration shared across subsystems. Reads
// take a snapshot; writes go through Update, which persists the result
// and notifies subscribers.
//
// Snapshots share slice and map storage with the live value, so treat
// them as read-only. Update callbacks that replace a map must clone it
// first.
type Settings struct {
	path string

	mu       sync.RWMutex
	cfg      Config
	onChange []func(Config)

	saveMu sync.Mutex
}

// NewSettings wraps a loaded Config. An empty path disables persistence,
// which is what tests want.
func NewSettings(path string, cfg Config) *Settings {
	return &Settings{path: path, cfg: cfg}
}

// Current returns the latest snapshot.
func (s *Settings) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// OnChange registers a callback invoked after every successful Update.
func (s *Settings) OnChange(fn func(Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Update applies fn to the live config, notifies subscribers, and writes
// the result to disk.
func (s *Settings) Update(fn func(*Config)) error {
	s.mu.Lock()
	fn(&s.cfg)
	snap := s.cfg
	callbacks := slices.Clone(s.onChange)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(snap)
	}
	return s.persist(snap)
}

// persist writes the snapshot atomically so a crash mid-write never
// truncates the config file.
func (s *Settings) persist(cfg Config) error {
	if s.path == "" {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
