package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/models"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("key not found")

// Provider is a small key-value store. The habit state, settings and the
// day offset each live under their own fixed key.
type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error

	// Key-value
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error

	// Completion history
	AppendCompletion(models.CompletionEvent) error
	ListCompletions(startDay, endDay string) ([]models.CompletionEvent, error)

	// Utils
	GetConfigPath() string
}

// GetSettings reads the persisted settings, falling back to defaults when
// none have been saved yet.
func GetSettings(p Provider) (models.Settings, error) {
	data, err := p.Get(constants.SettingsKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.DefaultSettings(), nil
		}
		return models.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	settings := models.DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return models.Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	return settings, nil
}

func SaveSettings(p Provider, settings models.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}
	return p.Put(constants.SettingsKey, data)
}

// SeedSettings writes default settings if none exist. Stores call it from
// Init.
func SeedSettings(p Provider) error {
	if _, err := p.Get(constants.SettingsKey); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := SaveSettings(p, models.DefaultSettings()); err != nil {
		return fmt.Errorf("failed to save default settings: %w", err)
	}
	return nil
}

// InRange reports whether day falls in [startDay, endDay]. Empty bounds are
// open.
func InRange(day, startDay, endDay string) bool {
	if startDay != "" && day < startDay {
		return false
	}
	if endDay != "" && day > endDay {
		return false
	}
	return true
}
