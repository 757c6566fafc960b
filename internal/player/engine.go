/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player renders playback commands on the local audio device. The
// engine tracks one instance of record per sound; superseded instances are
// detached first so their termination can never be mistaken for the live
// one finishing.
package player

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Asset is a decoded, replayable audio clip. Decoding happens once per
// sound per process; every playback streams from the cached asset.
type Asset interface {
	Duration() float64
}

// Loader fetches and decodes a sound source.
type Loader interface {
	Load(ctx context.Context, source string) (Asset, error)
}

// Voice is one live playback of an asset.
type Voice interface {
	SetGain(gain float64)
	Stop()
}

// Output starts voices on the audio device. onDone fires exactly once when
// the voice terminates for any reason; it must not be delivered while the
// device lock is held, since completion handling may touch other voices.
type Output interface {
	Start(asset Asset, gain float64, onDone func()) (Voice, error)
}

// Notifier receives playback lifecycle events (sound_started, sound_ended).
type Notifier func(action, soundID string)

type soundPhase int

const (
	phaseUnloaded soundPhase = iota
	phaseLoading
	phaseIdle
	phaseSounding
)

// instance identity distinguishes the live playback from superseded ones.
type instance struct {
	voice    Voice
	detached bool
}

type sound struct {
	source  string
	phase   soundPhase
	asset   Asset
	live    *instance
	volume  float64
	pending bool // play arrived while loading
}

// Engine is the per-process playback state machine.
type Engine struct {
	loader Loader
	output Output
	notify Notifier
	logger zerolog.Logger

	mu           sync.Mutex
	sounds       map[string]*sound
	masterVolume float64
}

// NewEngine creates an engine. notify may be nil.
func NewEngine(loader Loader, output Output, notify Notifier, logger zerolog.Logger) *Engine {
	if notify == nil {
		notify = func(string, string) {}
	}
	return &Engine{
		loader:       loader,
		output:       output,
		notify:       notify,
		logger:       logger.With().Str("component", "engine").Logger(),
		sounds:       make(map[string]*sound),
		masterVolume: 1,
	}
}

// SetCatalog replaces the known sound set. Sounds that disappeared are
// stopped and forgotten; surviving sounds keep their cached assets.
func (e *Engine) SetCatalog(sources map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, s := range e.sounds {
		source, ok := sources[id]
		if !ok {
			if s.live != nil {
				s.live.detached = true
				s.live.voice.Stop()
				e.notify(soundEnded, id)
			}
			delete(e.sounds, id)
			continue
		}
		if source != s.source {
			// Same id, different file. Drop the stale asset.
			s.source = source
			s.asset = nil
			if s.phase != phaseLoading {
				s.phase = phaseUnloaded
			}
		}
	}
	for id, source := range sources {
		if _, ok := e.sounds[id]; !ok {
			e.sounds[id] = &sound{source: source, volume: 1}
		}
	}
}

const (
	soundStarted = "sound_started"
	soundEnded   = "sound_ended"
)

// Play triggers the sound. A sound already sounding restarts from the
// beginning; a sound still loading coalesces into the in-flight load.
// Unknown ids are logged and ignored.
func (e *Engine) Play(ctx context.Context, soundID string) {
	e.mu.Lock()
	s, ok := e.sounds[soundID]
	if !ok {
		e.mu.Unlock()
		e.logger.Warn().Str("sound_id", soundID).Msg("play for unknown sound")
		return
	}

	switch s.phase {
	case phaseLoading:
		s.pending = true
		e.mu.Unlock()
		return
	case phaseUnloaded:
		s.phase = phaseLoading
		s.pending = true
		source := s.source
		e.mu.Unlock()
		e.load(ctx, soundID, source)
		return
	default:
		e.startLocked(soundID, s)
		e.mu.Unlock()
	}
}

// load decodes outside the lock, then starts playback if still wanted.
func (e *Engine) load(ctx context.Context, soundID, source string) {
	asset, err := e.loader.Load(ctx, source)

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sounds[soundID]
	if !ok || s.source != source {
		return // removed or replaced while loading
	}
	if err != nil {
		// Back to unloaded so the next trigger retries the load.
		s.phase = phaseUnloaded
		s.pending = false
		e.logger.Error().Err(err).Str("sound_id", soundID).Msg("load failed")
		return
	}

	s.asset = asset
	s.phase = phaseIdle
	if s.pending {
		s.pending = false
		e.startLocked(soundID, s)
	}
}

// startLocked supersedes any live instance and starts a fresh one. The old
// instance is detached before Stop so its termination callback is inert.
func (e *Engine) startLocked(soundID string, s *sound) {
	if s.live != nil {
		s.live.detached = true
		s.live.voice.Stop()
		s.live = nil
	}

	inst := &instance{}
	voice, err := e.output.Start(s.asset, s.volume*e.masterVolume, func() {
		e.onDone(soundID, inst)
	})
	if err != nil {
		s.phase = phaseIdle
		e.logger.Error().Err(err).Str("sound_id", soundID).Msg("output start failed")
		return
	}
	inst.voice = voice
	s.live = inst
	s.phase = phaseSounding
	e.notify(soundStarted, soundID)
}

// onDone handles voice termination. Only the instance of record finishing
// naturally counts as the sound ending.
func (e *Engine) onDone(soundID string, inst *instance) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if inst.detached {
		return
	}
	s, ok := e.sounds[soundID]
	if !ok || s.live != inst {
		return
	}
	s.live = nil
	s.phase = phaseIdle
	e.notify(soundEnded, soundID)
}

// StopAll silences every live instance and reports each stop synchronously.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, s := range e.sounds {
		if s.live == nil {
			continue
		}
		s.live.detached = true
		s.live.voice.Stop()
		s.live = nil
		s.phase = phaseIdle
		e.notify(soundEnded, id)
	}
}

// SetMasterVolume retunes every live voice. Idle sounds pick the new value
// up on their next start.
func (e *Engine) SetMasterVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.masterVolume = volume
	for _, s := range e.sounds {
		if s.live != nil {
			s.live.voice.SetGain(s.volume * e.masterVolume)
		}
	}
}

// SetSoundVolume retunes one sound's live voice, if any.
func (e *Engine) SetSoundVolume(soundID string, volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sounds[soundID]
	if !ok {
		return
	}
	s.volume = volume
	if s.live != nil {
		s.live.voice.SetGain(s.volume * e.masterVolume)
	}
}

// Sounding reports whether the sound currently has a live voice.
func (e *Engine) Sounding(soundID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sounds[soundID]
	return ok && s.phase == phaseSounding
}
