// Package preferences is the notification preference service. It is read once
// at startup from the local store and changed only through Save.
package preferences

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ankittk/agentsync/internal/localstore"
	"github.com/ankittk/agentsync/pkg/models"
)

// Defaults returns the preference set used when nothing valid is stored.
func Defaults() models.Preferences {
	return models.Preferences{
		DesktopNotifications:     true,
		SoundAlerts:              true,
		EmailNotifications:       true,
		NotifyOnMessages:         true,
		NotifyOnTaskAssignment:   true,
		NotifyOnCriticalTriggers: true,
		SoundVolume:              0.5,
		EmailFrequency:           models.FrequencyDaily,
	}
}

// Store holds the current preferences in memory, backed by a KV.
type Store struct {
	kv  localstore.KV
	mu  sync.RWMutex
	cur models.Preferences
}

// New returns a Store with defaults; call Load to read the persisted copy.
func New(kv localstore.KV) *Store {
	return &Store{kv: kv, cur: Defaults()}
}

// Load reads the persisted preferences. A missing, unreadable or malformed
// record leaves defaults in place and is never reported as an error.
func (s *Store) Load() models.Preferences {
	p := decode(s.kv)
	s.mu.Lock()
	s.cur = p
	s.mu.Unlock()
	return p
}

func decode(kv localstore.KV) models.Preferences {
	raw, ok, err := kv.Get(localstore.KeyPreferences)
	if err != nil {
		slog.Debug("preferences unreadable, using defaults", "err", err)
		return Defaults()
	}
	if !ok || raw == "" {
		return Defaults()
	}
	// Start from defaults so fields absent in older records stay true.
	p := Defaults()
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Debug("preferences malformed, using defaults", "err", err)
		return Defaults()
	}
	return normalize(p)
}

// normalize clamps volume and replaces an unknown frequency with the default.
func normalize(p models.Preferences) models.Preferences {
	switch {
	case p.SoundVolume < 0:
		p.SoundVolume = 0
	case p.SoundVolume > 1:
		p.SoundVolume = 1
	}
	if !models.ValidFrequency(p.EmailFrequency) {
		p.EmailFrequency = Defaults().EmailFrequency
	}
	return p
}

// Get returns a copy of the current preferences.
func (s *Store) Get() models.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Validate rejects values Save will not persist.
func Validate(p models.Preferences) error {
	if p.SoundVolume < 0 || p.SoundVolume > 1 {
		return fmt.Errorf("sound_volume must be within [0,1] (got %v)", p.SoundVolume)
	}
	if !models.ValidFrequency(p.EmailFrequency) {
		return fmt.Errorf("email_frequency must be realtime, hourly, daily, or weekly (got %q)", p.EmailFrequency)
	}
	return nil
}

// Save validates and persists p synchronously; memory is updated only after the write succeeds.
func (s *Store) Save(p models.Preferences) error {
	if err := Validate(p); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(localstore.KeyPreferences, string(data)); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	s.cur = p
	return nil
}

// Allows reports whether the category toggle permits an announcement.
func Allows(p models.Preferences, category string) bool {
	switch category {
	case models.CategoryMessage:
		return p.NotifyOnMessages
	case models.CategoryTask:
		return p.NotifyOnTaskAssignment
	case models.CategoryCritical:
		return p.NotifyOnCriticalTriggers
	}
	return false
}
