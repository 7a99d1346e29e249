// Package prefs is a small string key-value store persisted as a YAML file.
package prefs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps preferences in memory and rewrites the whole file on every Set
type FileStore struct {
	path   string
	mu     sync.RWMutex
	values map[string]string
}

// Open loads the preference file at path. A missing file starts an empty store.
// An unreadable or corrupt file is logged and also starts empty; the next Set
// rewrites it.
func Open(path string, logger *slog.Logger) *FileStore {
	s := &FileStore{path: path, values: map[string]string{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read prefs, starting empty", "path", path, "error", err)
		}
		return s
	}
	if len(raw) == 0 {
		return s
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		logger.Warn("Corrupt prefs file, starting empty", "path", path, "error", err)
		return s
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Get returns the value stored under key
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key and persists the file.
// On a write failure the in-memory value is kept and the error returned.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.save()
}

// Delete removes key and persists the file
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.save()
}

// save writes to a temp file in the same directory and renames it over the target
func (s *FileStore) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	payload, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close prefs: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}
