/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_cartwall/internal/catalog"
	"github.com/friendsincode/grimnir_cartwall/internal/hub"
)

// Client is the headless player endpoint: it keeps a WebSocket session to
// the hub, feeds commands into the engine, and reports playback state back.
// A dropped session reconnects forever at a fixed interval; while down,
// outbound notifications fail fast instead of queueing.
type Client struct {
	serverURL string
	reconnect time.Duration
	engine    *Engine
	http      *http.Client
	logger    zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client for the given server base URL. The engine's
// notifier must already be wired to this client's Notify.
func NewClient(serverURL string, reconnect time.Duration, engine *Engine, logger zerolog.Logger) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		reconnect: reconnect,
		engine:    engine,
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    logger.With().Str("component", "player-client").Logger(),
	}
}

// Run connects and services sessions until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Dur("retry_in", c.reconnect).Msg("session ended")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnect):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	if err := c.refreshCatalog(ctx); err != nil {
		return fmt.Errorf("fetch catalog: %w", err)
	}

	wsURL := "ws" + strings.TrimPrefix(c.serverURL, "http") + "/ws?role=player"
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.logger.Info().Str("url", wsURL).Msg("connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.dispatch(ctx, data)
	}
}

// dispatch applies one hub frame to the engine. Unknown or unparseable
// frames are ignored; the hub relays traffic this player has no use for.
func (c *Client) dispatch(ctx context.Context, data []byte) {
	var msg hub.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug().Msg("ignoring unparseable frame")
		return
	}

	switch msg.Action {
	case hub.ActionPlay:
		// Commands apply in frame-arrival order: a stopAll behind this
		// frame must observe the play. First triggers block the session
		// on the one-time decode.
		c.engine.Play(ctx, msg.SoundID)
	case hub.ActionStopAll:
		c.engine.StopAll()
	case hub.ActionSettingsInitialized, hub.ActionSettingsUpdated:
		c.applySettings(msg.Settings)
	case hub.ActionSettingChanged:
		c.applySettingChange(msg)
	case hub.ActionSoundsUpdated:
		if err := c.refreshCatalog(ctx); err != nil {
			c.logger.Error().Err(err).Msg("catalog refresh failed")
		}
	}
}

func (c *Client) applySettings(doc map[string]any) {
	if doc == nil {
		return
	}
	if volume, ok := doc["masterVolume"].(float64); ok {
		c.engine.SetMasterVolume(volume)
	}
	sounds, _ := doc["sounds"].(map[string]any)
	for id, raw := range sounds {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if volume, ok := entry["volume"].(float64); ok {
			c.engine.SetSoundVolume(id, volume)
		}
	}
}

func (c *Client) applySettingChange(msg hub.Message) {
	if msg.SoundID != "" {
		if msg.Setting == "volume" {
			if volume, ok := msg.Value.(float64); ok {
				c.engine.SetSoundVolume(msg.SoundID, volume)
			}
		}
		return
	}
	if msg.Setting == "masterVolume" {
		if volume, ok := msg.Value.(float64); ok {
			c.engine.SetMasterVolume(volume)
		}
	}
}

// refreshCatalog pulls the current listing and rebinds sound ids to their
// static file URLs.
func (c *Client) refreshCatalog(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/sounds", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog request: status %d", resp.StatusCode)
	}

	var payload struct {
		Sounds []catalog.Sound `json:"sounds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	sources := make(map[string]string, len(payload.Sounds))
	for _, sound := range payload.Sounds {
		sources[sound.ID] = c.serverURL + "/sounds/" + sound.File
	}
	c.engine.SetCatalog(sources)
	c.logger.Info().Int("sounds", len(sources)).Msg("catalog refreshed")
	return nil
}

// Notify sends a playback lifecycle event to the hub. With no live session
// the event is dropped and logged.
func (c *Client) Notify(action, soundID string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger.Warn().Str("action", action).Str("sound_id", soundID).Msg("not connected, dropping notification")
		return
	}

	data, ok := hub.Encode(hub.Message{Action: action, SoundID: soundID})
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.logger.Warn().Err(err).Str("action", action).Msg("notification write failed")
	}
}
