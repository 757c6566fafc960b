/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

const outputSampleRate = beep.SampleRate(48000)

// beepAsset is a fully decoded clip buffered in memory.
type beepAsset struct {
	buffer *beep.Buffer
	format beep.Format
}

func (a *beepAsset) Duration() float64 {
	return a.format.SampleRate.D(a.buffer.Len()).Seconds()
}

// BeepLoader fetches a sound over HTTP or from disk and decodes it whole.
type BeepLoader struct {
	client *http.Client
}

// NewBeepLoader creates a loader using the given HTTP client (nil for the
// default).
func NewBeepLoader(client *http.Client) *BeepLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &BeepLoader{client: client}
}

// Load reads the source and decodes it into a replayable buffer.
func (l *BeepLoader) Load(ctx context.Context, source string) (Asset, error) {
	data, err := l.fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	reader := io.NopCloser(bytes.NewReader(data))
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch sourceExt(source) {
	case ".wav":
		streamer, format, err = wav.Decode(reader)
	case ".mp3":
		streamer, format, err = mp3.Decode(reader)
	case ".ogg":
		streamer, format, err = vorbis.Decode(reader)
	case ".flac":
		streamer, format, err = flac.Decode(reader)
	default:
		return nil, fmt.Errorf("unsupported audio format %q", sourceExt(source))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}
	defer streamer.Close()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	return &beepAsset{buffer: buffer, format: format}, nil
}

func (l *BeepLoader) fetch(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", source, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(source)
}

// sourceExt extracts the lowercase file extension, ignoring any query
// string on URL sources.
func sourceExt(source string) string {
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		return strings.ToLower(path.Ext(u.Path))
	}
	return strings.ToLower(path.Ext(source))
}

// BeepOutput plays assets on the default audio device through one shared
// speaker mixer.
type BeepOutput struct{}

// NewBeepOutput initializes the audio device.
func NewBeepOutput() (*BeepOutput, error) {
	if err := speaker.Init(outputSampleRate, outputSampleRate.N(100*time.Millisecond)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return &BeepOutput{}, nil
}

// Start plays the asset from the beginning. onDone fires when the streamer
// terminates, whether it drained naturally or Stop cut it off.
func (o *BeepOutput) Start(asset Asset, gain float64, onDone func()) (Voice, error) {
	a, ok := asset.(*beepAsset)
	if !ok {
		return nil, fmt.Errorf("asset type %T not playable on this output", asset)
	}

	var streamer beep.Streamer = a.buffer.Streamer(0, a.buffer.Len())
	if a.format.SampleRate != outputSampleRate {
		streamer = beep.Resample(4, a.format.SampleRate, outputSampleRate, streamer)
	}

	vol := &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   gainToVolume(gain),
		Silent:   gain <= 0,
	}
	ctrl := &beep.Ctrl{Streamer: vol}

	// The mixer invokes callbacks while holding the speaker lock, and
	// completion handling may call SetGain/Stop on other voices, which
	// take that same lock. Deliver completion asynchronously.
	speaker.Play(beep.Seq(ctrl, beep.Callback(func() { go onDone() })))
	return &beepVoice{ctrl: ctrl, vol: vol}, nil
}

type beepVoice struct {
	ctrl *beep.Ctrl
	vol  *effects.Volume
}

func (v *beepVoice) SetGain(gain float64) {
	speaker.Lock()
	v.vol.Volume = gainToVolume(gain)
	v.vol.Silent = gain <= 0
	speaker.Unlock()
}

// Stop detaches the streamer under the speaker lock; the mixer then drains
// straight into the completion callback.
func (v *beepVoice) Stop() {
	speaker.Lock()
	v.ctrl.Streamer = nil
	speaker.Unlock()
}

// gainToVolume maps a linear gain factor onto the exponential volume scale
// (Base 2), where 0 is unity.
func gainToVolume(gain float64) float64 {
	if gain <= 0 {
		return 0
	}
	return math.Log2(gain)
}
