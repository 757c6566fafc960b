/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_cartwall/internal/events"
	"github.com/friendsincode/grimnir_cartwall/internal/telemetry"
)

// Watcher observes the sounds root and publishes a catalog-changed event
// when the set of files actually differs from the last known listing.
// Filesystem notifications are debounced into a single rescan; a poll
// ticker backstops platforms and paths where notifications are unreliable.
type Watcher struct {
	root     string
	lister   Lister
	bus      *events.Bus
	logger   zerolog.Logger
	debounce time.Duration
	poll     time.Duration

	fingerprint string
}

// NewWatcher creates a watcher over root. The initial fingerprint is taken
// from the first List call inside Run, so events only fire for changes
// observed after startup.
func NewWatcher(root string, lister Lister, bus *events.Bus, debounce, poll time.Duration, logger zerolog.Logger) *Watcher {
	return &Watcher{
		root:     root,
		lister:   lister,
		bus:      bus,
		logger:   logger.With().Str("component", "watcher").Logger(),
		debounce: debounce,
		poll:     poll,
	}
}

// Run blocks until ctx is cancelled. Notification setup failures degrade to
// poll-only operation rather than aborting.
func (w *Watcher) Run(ctx context.Context) {
	if sounds, err := w.lister.List(); err == nil {
		w.fingerprint = Fingerprint(sounds)
	}

	var notifyCh chan fsnotify.Event
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn().Err(err).Msg("fsnotify unavailable, relying on polling")
	} else {
		defer fsWatcher.Close()
		w.addWatchTargets(fsWatcher)
		notifyCh = make(chan fsnotify.Event)
		go w.forwardEvents(ctx, fsWatcher, notifyCh)
	}

	// The debounce timer is single-shot and restarted on every burst event,
	// so a stream of rapid changes collapses into one rescan.
	debounce := time.NewTimer(w.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	poll := time.NewTicker(w.poll)
	defer poll.Stop()

	w.logger.Info().Str("root", w.root).Dur("debounce", w.debounce).Dur("poll", w.poll).Msg("watcher started")

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return
		case <-notifyCh:
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.debounce)
		case <-debounce.C:
			w.rescan("watch")
			if fsWatcher != nil {
				w.addWatchTargets(fsWatcher)
			}
		case <-poll.C:
			w.rescan("poll")
		}
	}
}

// addWatchTargets registers the root and its first-level subdirectories.
// Category directories created later are picked up after the next rescan.
func (w *Watcher) addWatchTargets(fsWatcher *fsnotify.Watcher) {
	if err := fsWatcher.Add(w.root); err != nil {
		w.logger.Warn().Err(err).Str("path", w.root).Msg("watch add failed")
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(w.root, entry.Name())
		if err := fsWatcher.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("watch add failed")
		}
	}
}

func (w *Watcher) forwardEvents(ctx context.Context, fsWatcher *fsnotify.Watcher, out chan<- fsnotify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// rescan recomputes the listing and publishes at most one event when it
// differs from the previous one.
func (w *Watcher) rescan(trigger string) {
	telemetry.CatalogRescansTotal.WithLabelValues(trigger).Inc()

	sounds, err := w.lister.List()
	if err != nil {
		w.logger.Error().Err(err).Msg("rescan failed")
		return
	}
	fingerprint := Fingerprint(sounds)
	if fingerprint == w.fingerprint {
		return
	}
	w.fingerprint = fingerprint

	telemetry.CatalogChangesTotal.Inc()
	w.logger.Info().Str("trigger", trigger).Int("sounds", len(sounds)).Msg("catalog changed")
	w.bus.Publish(events.EventCatalogChanged, events.Payload{"count": len(sounds)})
}
