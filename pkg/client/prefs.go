package bioscope

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Preferences are the persisted UI settings.
type Preferences struct {
	Theme             string `json:"theme"`
	TopK              int    `json:"topK"`
	ArtifactsPaneOpen bool   `json:"artifactsPaneOpen"`
	ActiveArtifactTab string `json:"activeArtifactTab"`
}

func defaultPreferences() Preferences {
	return Preferences{
		Theme:             "system",
		TopK:              defaultTopK,
		ActiveArtifactTab: "results",
	}
}

// PrefStore persists preferences to a JSON file, write-through on every
// update. Safe for concurrent use within one process; it does not coordinate
// across processes.
type PrefStore struct {
	mu    sync.Mutex
	path  string
	prefs Preferences
}

// OpenPrefStore loads preferences from path, falling back to defaults when
// the file does not exist yet.
func OpenPrefStore(path string) (*PrefStore, error) {
	s := &PrefStore{path: path, prefs: defaultPreferences()}

	data, err := os.ReadFile(filepath.Clean(path))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bioscope: read preferences: %w", err)
	}
	if err := json.Unmarshal(data, &s.prefs); err != nil {
		return nil, fmt.Errorf("bioscope: parse preferences: %w", err)
	}
	if s.prefs.TopK <= 0 {
		s.prefs.TopK = defaultTopK
	}
	return s, nil
}

// Get returns the current preferences.
func (s *PrefStore) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Update applies fn to the preferences and writes the result to disk.
func (s *PrefStore) Update(fn func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prefs
	fn(&next)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("bioscope: marshal preferences: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("bioscope: write preferences: %w", err)
	}

	s.prefs = next
	return nil
}
