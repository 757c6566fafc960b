package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_cartwall/internal/catalog"
	"github.com/friendsincode/grimnir_cartwall/internal/events"
	"github.com/friendsincode/grimnir_cartwall/internal/settings"
)

type stubLister struct {
	sounds []catalog.Sound
	err    error
}

func (s *stubLister) List() ([]catalog.Sound, error) { return s.sounds, s.err }

func newTestAPI(t *testing.T, lister catalog.Lister) (*settings.Store, *events.Bus, *httptest.Server) {
	t.Helper()
	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop())
	store.Load()
	bus := events.NewBus()

	router := chi.NewRouter()
	New(store, lister, bus, zerolog.Nop()).Routes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return store, bus, server
}

func TestGetSoundsReturnsListingAndOrder(t *testing.T) {
	lister := &stubLister{sounds: []catalog.Sound{
		catalog.NewSound("cat1", "b", "cat1/b.mp3"),
		catalog.NewSound("cat1", "a", "cat1/a.mp3"),
		catalog.NewSound("", "c", "c.mp3"),
	}}
	_, _, server := newTestAPI(t, lister)

	resp, err := http.Get(server.URL + "/api/sounds")
	if err != nil {
		t.Fatalf("GET /api/sounds: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Sounds []catalog.Sound `json:"sounds"`
		Order  []string        `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sounds) != 3 {
		t.Fatalf("sounds = %d, want 3", len(body.Sounds))
	}
	want := []string{
		catalog.SoundID("cat1", "a"),
		catalog.SoundID("cat1", "b"),
		catalog.SoundID("", "c"),
	}
	for i, id := range want {
		if body.Order[i] != id {
			t.Fatalf("order = %v, want %v", body.Order, want)
		}
	}
}

func TestGetSoundsIncludesGroupsInCategoryMode(t *testing.T) {
	lister := &stubLister{sounds: []catalog.Sound{
		catalog.NewSound("cat1", "a", "cat1/a.mp3"),
		catalog.NewSound("", "c", "c.mp3"),
	}}
	store, _, server := newTestAPI(t, lister)
	store.Set("sortBy", "category")

	resp, err := http.Get(server.URL + "/api/sounds")
	if err != nil {
		t.Fatalf("GET /api/sounds: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Groups []struct {
			Category string   `json:"category"`
			IDs      []string `json:"ids"`
		} `json:"groups"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(body.Groups))
	}
	if body.Groups[0].Category != "cat1" || body.Groups[1].Category != "uncategorized" {
		t.Fatalf("group order = [%s, %s]", body.Groups[0].Category, body.Groups[1].Category)
	}
}

func TestGetSoundsUnreadableDirectoryIs500(t *testing.T) {
	_, _, server := newTestAPI(t, &stubLister{err: errors.New("permission denied")})

	resp, err := http.Get(server.URL + "/api/sounds")
	if err != nil {
		t.Fatalf("GET /api/sounds: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestGetSettingsReturnsSnapshot(t *testing.T) {
	store, _, server := newTestAPI(t, &stubLister{})
	store.Set("masterVolume", 0.6)

	resp, err := http.Get(server.URL + "/api/settings")
	if err != nil {
		t.Fatalf("GET /api/settings: %v", err)
	}
	defer resp.Body.Close()

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["masterVolume"] != 0.6 {
		t.Fatalf("masterVolume = %v", doc["masterVolume"])
	}
}

func TestPostSettingsMergesAndPublishes(t *testing.T) {
	store, bus, server := newTestAPI(t, &stubLister{})
	sub := bus.Subscribe(events.EventSettingsReplaced)

	resp, err := http.Post(server.URL+"/api/settings", "application/json",
		strings.NewReader(`{"masterVolume": 0.3, "columns": 5}`))
	if err != nil {
		t.Fatalf("POST /api/settings: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	view := store.View()
	if view.MasterVolume != 0.3 || view.Columns != 5 {
		t.Fatalf("view = %+v", view)
	}
	if view.SortBy != "name" {
		t.Fatal("untouched fields must survive the merge")
	}

	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("no settings-replaced event published")
	}
}

func TestPostSettingsRejectsInvalidBody(t *testing.T) {
	_, _, server := newTestAPI(t, &stubLister{})

	resp, err := http.Post(server.URL+"/api/settings", "application/json", strings.NewReader("nope"))
	if err != nil {
		t.Fatalf("POST /api/settings: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
