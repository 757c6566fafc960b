/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the REST surface used by non-realtime clients before
// they establish a hub session.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_cartwall/internal/catalog"
	"github.com/friendsincode/grimnir_cartwall/internal/events"
	"github.com/friendsincode/grimnir_cartwall/internal/order"
	"github.com/friendsincode/grimnir_cartwall/internal/settings"
)

// Handler serves the JSON API.
type Handler struct {
	store  *settings.Store
	lister catalog.Lister
	bus    *events.Bus
	logger zerolog.Logger
}

// New creates the API handler.
func New(store *settings.Store, lister catalog.Lister, bus *events.Bus, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		lister: lister,
		bus:    bus,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the API endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/sounds", h.getSounds)
	r.Get("/api/settings", h.getSettings)
	r.Post("/api/settings", h.postSettings)
}

type soundsResponse struct {
	Sounds []catalog.Sound `json:"sounds"`
	Order  []string        `json:"order"`
	Groups []order.Group   `json:"groups,omitempty"`
}

// getSounds returns the current listing plus the resolved display order
// under the active sort settings.
func (h *Handler) getSounds(w http.ResponseWriter, r *http.Request) {
	sounds, err := h.lister.List()
	if err != nil {
		h.logger.Error().Err(err).Msg("listing failed")
		respondError(w, http.StatusInternalServerError, "sound directory unreadable")
		return
	}

	view := h.store.View()
	items := make([]order.Item, len(sounds))
	for i, sound := range sounds {
		items[i] = order.Item{ID: sound.ID, Name: sound.Name, Category: sound.Category}
	}
	opts := order.Options{
		SortBy:              view.SortBy,
		SortOrder:           view.SortOrder,
		CustomOrder:         view.CustomOrder,
		CustomCategoryOrder: view.CustomCategoryOrder,
	}

	resp := soundsResponse{
		Sounds: sounds,
		Order:  order.Resolve(items, opts),
	}
	if view.SortBy == order.ByCategory {
		resp.Groups = order.ResolveGroups(items, opts)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Snapshot())
}

// postSettings replaces the provided top-level fields, persists, and lets
// the hub push the confirmed document to every connection. The merge is
// shallow: posting a sounds map replaces the whole map.
func (h *Handler) postSettings(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	h.store.ApplyPatch(patch)
	h.bus.Publish(events.EventSettingsReplaced, nil)
	respondJSON(w, http.StatusOK, h.store.Snapshot())
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
