/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// audioExtensions are the file types the player can decode.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
	".m4a":  true,
}

// IsAudioFile reports whether the file name has a playable extension.
func IsAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// Lister produces the current library listing.
type Lister interface {
	List() ([]Sound, error)
}

// FSLister reads the library from a directory tree. Files directly under
// the root are uncategorized; files in a first-level subdirectory carry
// that directory's name as their category. Deeper nesting is ignored.
type FSLister struct {
	root   string
	logger zerolog.Logger
}

// NewFSLister creates a lister over root, creating the directory if it
// does not exist yet.
func NewFSLister(root string, logger zerolog.Logger) (*FSLister, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create sounds directory: %w", err)
	}
	return &FSLister{
		root:   root,
		logger: logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// List scans the root and returns the sounds in path order.
func (l *FSLister) List() ([]Sound, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("read sounds directory: %w", err)
	}

	var sounds []Sound
	for _, entry := range entries {
		if entry.IsDir() {
			categorized, err := l.listCategory(entry.Name())
			if err != nil {
				// A vanished or unreadable subdirectory should not take
				// down the whole listing.
				l.logger.Warn().Err(err).Str("category", entry.Name()).Msg("skipping unreadable category")
				continue
			}
			sounds = append(sounds, categorized...)
			continue
		}
		if !IsAudioFile(entry.Name()) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		sounds = append(sounds, NewSound("", name, entry.Name()))
	}

	sort.Slice(sounds, func(i, j int) bool { return sounds[i].File < sounds[j].File })
	return sounds, nil
}

func (l *FSLister) listCategory(category string) ([]Sound, error) {
	entries, err := os.ReadDir(filepath.Join(l.root, category))
	if err != nil {
		return nil, err
	}

	var sounds []Sound
	for _, entry := range entries {
		if entry.IsDir() || !IsAudioFile(entry.Name()) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		relPath := category + "/" + entry.Name()
		sounds = append(sounds, NewSound(category, name, relPath))
	}
	return sounds, nil
}
