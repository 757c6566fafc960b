/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog discovers playable audio files under the sounds root and
// keeps that view current as files appear and disappear.
package catalog

import (
	"net/url"
	"sort"
	"strings"
)

// Sound is one playable file in the library.
type Sound struct {
	ID       string `json:"id"`
	Name     string `json:"name"`     // file name without extension
	File     string `json:"file"`     // path relative to the sounds root, forward slashes
	Category string `json:"category"` // first-level directory, empty at the root
}

// escapeComponent makes a name or category safe for embedding in a sound id.
// The separator byte itself is escaped so distinct (category, name) pairs can
// never collide.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "-", "%2D")
}

// SoundID derives the stable id for a (category, name) pair. Ids survive
// rescans, restarts, and transport because they depend only on the pair.
func SoundID(category, name string) string {
	return "sound-" + escapeComponent(category) + "-" + escapeComponent(name)
}

// NewSound builds the Sound record for a file at relPath (relative to the
// sounds root) in the given category.
func NewSound(category, name, relPath string) Sound {
	return Sound{
		ID:       SoundID(category, name),
		Name:     name,
		File:     relPath,
		Category: category,
	}
}

// Fingerprint condenses a listing into a comparable string. Two listings
// with the same fingerprint describe the same set of files.
func Fingerprint(sounds []Sound) string {
	keys := make([]string, len(sounds))
	for i, s := range sounds {
		keys[i] = s.File
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x00")
}
