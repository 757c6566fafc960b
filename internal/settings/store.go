/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package settings owns the durable shared configuration document. All
// mutation paths funnel through one shallow-merge routine, and every
// successful mutation is persisted before the caller regains control, so
// notifications derived from it always describe on-disk state.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_cartwall/internal/telemetry"
)

// Defaults returns the documented default settings document.
func Defaults() map[string]any {
	return map[string]any{
		"masterVolume":        float64(1),
		"columns":             float64(3),
		"playOnRemote":        false,
		"sortBy":              "name",     // name, category, or custom
		"sortOrder":           "asc",      // asc or desc
		"customOrder":         []any{},    // sound ids
		"customCategoryOrder": []any{},    // category names
		"sounds":              map[string]any{}, // sound id -> {volume, color}
	}
}

// Store holds the settings document and persists it to a single JSON file.
type Store struct {
	path   string
	logger zerolog.Logger

	mu  sync.Mutex
	doc map[string]any
}

// NewStore creates a store bound to path. Call Load before first use.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "settings").Logger(),
		doc:    Defaults(),
	}
}

// Load reads the persisted document. It never fails: a missing or corrupt
// file falls back to defaults, which are written back immediately.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info().Str("path", s.path).Msg("no settings file, creating defaults")
		} else {
			s.logger.Error().Err(err).Str("path", s.path).Msg("settings unreadable, falling back to defaults")
		}
		s.doc = Defaults()
		s.persistLocked()
		return
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("settings corrupt, falling back to defaults")
		s.doc = Defaults()
		s.persistLocked()
		return
	}

	// Backfill keys added after the file was written.
	for key, def := range Defaults() {
		if _, ok := doc[key]; !ok {
			doc[key] = def
		}
	}
	s.doc = doc
	s.logger.Info().Str("path", s.path).Msg("settings loaded")
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopyMap(s.doc)
}

// ApplyPatch merges patch into the document one top-level key at a time,
// replacing whole sub-maps, then persists synchronously. Callers needing a
// field-level update inside sounds must use UpdateSound instead.
func (s *Store) ApplyPatch(patch map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range patch {
		s.doc[key] = deepCopyValue(value)
	}
	s.persistLocked()
}

// Set replaces a single top-level key and persists.
func (s *Store) Set(field string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc[field] = deepCopyValue(value)
	s.persistLocked()
}

// UpdateSound read-modify-writes one field of one sound's sub-map, leaving
// that sound's sibling fields and every other sound untouched, then persists.
func (s *Store) UpdateSound(soundID, field string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sounds, ok := s.doc["sounds"].(map[string]any)
	if !ok {
		sounds = map[string]any{}
		s.doc["sounds"] = sounds
	}
	entry, ok := sounds[soundID].(map[string]any)
	if !ok {
		entry = map[string]any{}
		sounds[soundID] = entry
	}
	entry[field] = deepCopyValue(value)
	s.persistLocked()
}

// View is the typed projection of the keys the order resolver and the
// player care about.
type View struct {
	MasterVolume        float64
	Columns             int
	PlayOnRemote        bool
	SortBy              string
	SortOrder           string
	CustomOrder         []string
	CustomCategoryOrder []string
}

// View extracts the typed projection of the current document. Absent or
// malformed keys resolve to their defaults.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return View{
		MasterVolume:        floatOr(s.doc["masterVolume"], 1),
		Columns:             int(floatOr(s.doc["columns"], 3)),
		PlayOnRemote:        boolOr(s.doc["playOnRemote"], false),
		SortBy:              stringOr(s.doc["sortBy"], "name"),
		SortOrder:           stringOr(s.doc["sortOrder"], "asc"),
		CustomOrder:         stringSlice(s.doc["customOrder"]),
		CustomCategoryOrder: stringSlice(s.doc["customCategoryOrder"]),
	}
}

// SoundVolume returns the stored per-sound volume, defaulting to 1.
func (s *Store) SoundVolume(soundID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sounds, ok := s.doc["sounds"].(map[string]any)
	if !ok {
		return 1
	}
	entry, ok := sounds[soundID].(map[string]any)
	if !ok {
		return 1
	}
	return floatOr(entry["volume"], 1)
}

// persistLocked writes the document atomically (temp file + rename). A
// write failure is logged and the in-memory state kept; it is never fatal.
func (s *Store) persistLocked() {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		telemetry.SettingsWritesTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("settings marshal failed")
		return
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		telemetry.SettingsWritesTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("path", s.path).Msg("settings write failed, continuing with in-memory state")
		return
	}
	telemetry.SettingsWritesTotal.WithLabelValues("ok").Inc()
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = deepCopyValue(value)
	}
	return out
}

func deepCopyValue(in any) any {
	switch v := in.(type) {
	case map[string]any:
		return deepCopyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = deepCopyValue(elem)
		}
		return out
	default:
		return v
	}
}

func floatOr(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func boolOr(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func stringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, elem := range list {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
