/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package hub accepts WebSocket connections and routes structured messages
// between remotes and players. The hub is a stateless router: durable state
// lives in the settings store, and delivery is best-effort fan-out.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_cartwall/internal/events"
	"github.com/friendsincode/grimnir_cartwall/internal/settings"
	"github.com/friendsincode/grimnir_cartwall/internal/telemetry"
)

// Connection roles.
const (
	RolePlayer = "player"
	RoleRemote = "remote"
)

const (
	sendQueueSize = 32
	writeTimeout  = 10 * time.Second
)

// client is one accepted connection. The send queue is drained by a writer
// goroutine so a slow reader never blocks fan-out.
type client struct {
	id   uuid.UUID
	role string
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the connection registry.
type Hub struct {
	store  *settings.Store
	bus    *events.Bus
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]*client
}

// New creates a hub backed by the given settings store and event bus.
func New(store *settings.Store, bus *events.Bus, logger zerolog.Logger) *Hub {
	return &Hub{
		store:   store,
		bus:     bus,
		logger:  logger.With().Str("component", "hub").Logger(),
		clients: make(map[uuid.UUID]*client),
	}
}

// Run forwards bus events to connected clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	catalogCh := h.bus.Subscribe(events.EventCatalogChanged)
	settingsCh := h.bus.Subscribe(events.EventSettingsReplaced)
	defer h.bus.Unsubscribe(events.EventCatalogChanged, catalogCh)
	defer h.bus.Unsubscribe(events.EventSettingsReplaced, settingsCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-catalogCh:
			h.BroadcastMessage(Message{Action: ActionSoundsUpdated})
		case <-settingsCh:
			h.BroadcastMessage(Message{
				Action:   ActionSettingsUpdated,
				Settings: h.store.Snapshot(),
			})
		}
	}
}

// detectRole resolves the connection role. An explicit role query parameter
// wins; otherwise an OBS user agent marks the embedded browser source as
// the player and everything else is a remote.
func detectRole(r *http.Request) string {
	switch r.URL.Query().Get("role") {
	case RolePlayer:
		return RolePlayer
	case RoleRemote:
		return RoleRemote
	}
	if strings.Contains(r.UserAgent(), "OBS") {
		return RolePlayer
	}
	return RoleRemote
}

// Handle upgrades the request and services the connection until it closes.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	c := &client{
		id:   uuid.New(),
		role: detectRole(r),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}

	// New connections get the full settings document before anything
	// else. The greeting goes into the still-private queue ahead of
	// registration, so no concurrent broadcast can land in front of it.
	// The queue is empty here and cannot block.
	if data, ok := Encode(Message{
		Action:   ActionSettingsInitialized,
		Settings: h.store.Snapshot(),
	}); ok {
		c.send <- data
	}

	h.register(c)
	defer h.unregister(c)

	go h.writer(c)

	h.readLoop(r.Context(), c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	telemetry.HubConnections.WithLabelValues(c.role).Inc()
	h.logger.Info().Str("client_id", c.id.String()).Str("role", c.role).Int("clients", count).Msg("client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	telemetry.HubConnections.WithLabelValues(c.role).Dec()
	h.logger.Info().Str("client_id", c.id.String()).Str("role", c.role).Int("clients", count).Msg("client disconnected")
}

// writer drains the client's queue onto the wire. A write failure closes
// the connection, which ends the read loop and unregisters the client.
func (h *Hub) writer(c *client) {
	for data := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.Debug().Err(err).Str("client_id", c.id.String()).Msg("write failed")
			c.conn.Close(websocket.StatusAbnormalClosure, "write failed")
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug().Err(err).Str("client_id", c.id.String()).Msg("read error")
			}
			return
		}
		h.route(c, data)
	}
}

// route dispatches one inbound frame. Frames that are not valid JSON
// objects still relay to the other connections untouched.
func (h *Hub) route(sender *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.HubMessagesTotal.WithLabelValues("malformed").Inc()
		h.logger.Warn().Str("client_id", sender.id.String()).Msg("unparseable frame, relaying verbatim")
		h.broadcastExcept(sender, data)
		return
	}

	telemetry.HubMessagesTotal.WithLabelValues(msg.Action).Inc()

	switch msg.Action {
	case ActionUpdateSetting:
		h.applySetting(msg)
	default:
		// play, stopAll, sound_started, sound_ended, and anything newer
		// than this hub all relay unmodified to everyone but the sender.
		h.broadcastExcept(sender, data)
	}
}

// applySetting persists an update_setting mutation and fans the confirmed
// change out to every connection, sender included. The confirmation only
// goes out after the store write, so it always describes durable state.
func (h *Hub) applySetting(msg Message) {
	// A frame without a setting name still fans out, but never reaches
	// the store: an empty key must not end up in the durable document.
	if msg.Setting != "" {
		if msg.SoundID != "" {
			h.store.UpdateSound(msg.SoundID, msg.Setting, msg.Value)
		} else {
			h.store.Set(msg.Setting, msg.Value)
		}
	}

	h.BroadcastMessage(Message{
		Action:  ActionSettingChanged,
		SoundID: msg.SoundID,
		Setting: msg.Setting,
		Value:   msg.Value,
	})
}

// BroadcastMessage sends a structured message to every connection.
func (h *Hub) BroadcastMessage(msg Message) {
	data, ok := Encode(msg)
	if !ok {
		h.logger.Error().Str("action", msg.Action).Msg("message encode failed")
		return
	}
	h.broadcastExcept(nil, data)
}

// broadcastExcept fans data out to every client but the excluded one.
// Clients with a full queue drop this frame rather than stalling the rest.
func (h *Hub) broadcastExcept(exclude *client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if exclude != nil && c.id == exclude.id {
			continue
		}
		select {
		case c.send <- data:
		default:
			telemetry.HubDroppedSendsTotal.Inc()
			h.logger.Warn().Str("client_id", c.id.String()).Msg("send queue full, dropping frame")
		}
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
