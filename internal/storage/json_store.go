package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/julianstephens/repcam/internal/models"
)

type jsonFile struct {
	Version     int                      `json:"version"`
	Entries     map[string]string        `json:"entries"`
	Completions []models.CompletionEvent `json:"completions"`
}

// JSONStore keeps every key in a single JSON document on disk. It is meant
// for portable exports and tests; SQLite is the default backend.
type JSONStore struct {
	mu   sync.Mutex
	path string
	file *jsonFile
}

func NewJSONStore(configPath string) *JSONStore {
	return &JSONStore{
		path: configPath,
	}
}

func (s *JSONStore) Init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := s.Load(); err != nil {
			return err
		}
	} else {
		s.mu.Lock()
		s.file = &jsonFile{Version: 1, Entries: make(map[string]string)}
		err := s.save()
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}

	return SeedSettings(s)
}

func (s *JSONStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage not initialized, run 'repcam init' first")
		}
		return fmt.Errorf("failed to read storage: %w", err)
	}

	file := &jsonFile{}
	if err := json.Unmarshal(data, file); err != nil {
		return fmt.Errorf("failed to parse storage: %w", err)
	}
	if file.Entries == nil {
		file.Entries = make(map[string]string)
	}

	s.mu.Lock()
	s.file = file
	s.mu.Unlock()
	return nil
}

func (s *JSONStore) Close() error {
	return nil
}

// save writes through a temp file and rename. Callers hold s.mu.
func (s *JSONStore) save() error {
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize storage: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write storage: %w", err)
	}
	return nil
}

func (s *JSONStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil, fmt.Errorf("storage not loaded")
	}
	v, ok := s.file.Entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return []byte(v), nil
}

func (s *JSONStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("storage not loaded")
	}
	s.file.Entries[key] = string(value)
	return s.save()
}

func (s *JSONStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("storage not loaded")
	}
	if _, ok := s.file.Entries[key]; !ok {
		return nil
	}
	delete(s.file.Entries, key)
	return s.save()
}

func (s *JSONStore) AppendCompletion(ev models.CompletionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("storage not loaded")
	}
	s.file.Completions = append(s.file.Completions, ev)
	return s.save()
}

func (s *JSONStore) ListCompletions(startDay, endDay string) ([]models.CompletionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil, fmt.Errorf("storage not loaded")
	}
	var out []models.CompletionEvent
	for _, ev := range s.file.Completions {
		if InRange(ev.Date, startDay, endDay) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// GetConfigPath returns the path of the backing file.
//
// Running multiple repcam processes against the same file at the same time
// is not supported and may lose writes.
func (s *JSONStore) GetConfigPath() string {
	return s.path
}
