package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_cartwall/internal/events"
	"github.com/friendsincode/grimnir_cartwall/internal/settings"
)

func newTestHub(t *testing.T) (*Hub, *settings.Store, *events.Bus, string) {
	t.Helper()
	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop())
	store.Load()
	bus := events.NewBus()
	h := New(store, bus, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(h.Handle))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return h, store, bus, wsURL
}

// dial connects and consumes the settings_initialized greeting.
func dial(t *testing.T, url string) (*websocket.Conn, Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	return conn, readMessage(t, conn)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("parse %q: %v", data, err)
	}
	return msg
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, ok := Encode(msg)
	if !ok {
		t.Fatal("encode failed")
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expectNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, data, err := conn.Read(ctx); err == nil {
		t.Fatalf("unexpected frame: %s", data)
	}
}

func TestConnectReceivesSettingsInitialized(t *testing.T) {
	_, _, _, url := newTestHub(t)

	_, greeting := dial(t, url)
	if greeting.Action != ActionSettingsInitialized {
		t.Fatalf("greeting action = %q", greeting.Action)
	}
	if greeting.Settings["masterVolume"] != float64(1) {
		t.Fatalf("greeting settings = %v", greeting.Settings)
	}
}

func TestUpdateSettingConfirmsToAllAndPersists(t *testing.T) {
	_, store, _, url := newTestHub(t)

	remote1, _ := dial(t, url)
	remote2, _ := dial(t, url)
	player, _ := dial(t, url+"?role=player")

	writeMessage(t, remote1, Message{Action: ActionUpdateSetting, Setting: "masterVolume", Value: 0.5})

	for name, conn := range map[string]*websocket.Conn{"remote1": remote1, "remote2": remote2, "player": player} {
		msg := readMessage(t, conn)
		if msg.Action != ActionSettingChanged {
			t.Fatalf("%s got action %q", name, msg.Action)
		}
		if msg.Setting != "masterVolume" || msg.Value != float64(0.5) {
			t.Fatalf("%s got %+v", name, msg)
		}
	}

	if got := store.View().MasterVolume; got != 0.5 {
		t.Fatalf("persisted masterVolume = %v, want 0.5", got)
	}
}

func TestUpdateSettingWithSoundIDUpdatesNestedEntry(t *testing.T) {
	_, store, _, url := newTestHub(t)

	remote, _ := dial(t, url)
	writeMessage(t, remote, Message{Action: ActionUpdateSetting, SoundID: "sound-x", Setting: "volume", Value: 0.3})

	msg := readMessage(t, remote)
	if msg.Action != ActionSettingChanged || msg.SoundID != "sound-x" {
		t.Fatalf("confirmation = %+v", msg)
	}
	if got := store.SoundVolume("sound-x"); got != 0.3 {
		t.Fatalf("stored volume = %v, want 0.3", got)
	}
}

func TestUpdateSettingWithoutNameDoesNotPersist(t *testing.T) {
	_, store, _, url := newTestHub(t)

	remote, _ := dial(t, url)
	writeMessage(t, remote, Message{Action: ActionUpdateSetting, Value: 0.5})
	writeMessage(t, remote, Message{Action: ActionUpdateSetting, SoundID: "sound-x", Value: 0.5})

	// Both frames still confirm to the sender.
	for i := 0; i < 2; i++ {
		if msg := readMessage(t, remote); msg.Action != ActionSettingChanged {
			t.Fatalf("confirmation %d action = %q", i, msg.Action)
		}
	}

	snap := store.Snapshot()
	if _, ok := snap[""]; ok {
		t.Fatal("empty top-level key persisted")
	}
	sounds := snap["sounds"].(map[string]any)
	if _, ok := sounds["sound-x"]; ok {
		t.Fatal("nameless sound update created a store entry")
	}
}

func TestSettingsInitializedIsFirstFrameUnderBroadcastLoad(t *testing.T) {
	h, _, _, url := newTestHub(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.BroadcastMessage(Message{Action: ActionSoundsUpdated})
			}
		}
	}()

	for i := 0; i < 5; i++ {
		_, first := dial(t, url)
		if first.Action != ActionSettingsInitialized {
			t.Fatalf("connection %d: first frame action = %q", i, first.Action)
		}
	}

	close(stop)
	wg.Wait()
}

func TestPlayRelaysToAllExceptSender(t *testing.T) {
	_, _, _, url := newTestHub(t)

	remote, _ := dial(t, url)
	player, _ := dial(t, url+"?role=player")

	writeMessage(t, remote, Message{Action: ActionPlay, SoundID: "sound-a"})

	msg := readMessage(t, player)
	if msg.Action != ActionPlay || msg.SoundID != "sound-a" {
		t.Fatalf("player got %+v", msg)
	}
	expectNoMessage(t, remote)
}

func TestMalformedFrameRelaysVerbatim(t *testing.T) {
	_, _, _, url := newTestHub(t)

	sender, _ := dial(t, url)
	receiver, _ := dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sender.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := receiver.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "not json" {
		t.Fatalf("relayed frame = %q", data)
	}
	expectNoMessage(t, sender)
}

func TestCatalogEventBroadcastsSoundsUpdated(t *testing.T) {
	_, _, bus, url := newTestHub(t)

	conn, _ := dial(t, url)
	bus.Publish(events.EventCatalogChanged, events.Payload{"count": 1})

	msg := readMessage(t, conn)
	if msg.Action != ActionSoundsUpdated {
		t.Fatalf("action = %q, want %q", msg.Action, ActionSoundsUpdated)
	}
}

func TestSettingsReplacedEventBroadcastsSnapshot(t *testing.T) {
	_, store, bus, url := newTestHub(t)

	conn, _ := dial(t, url)
	store.Set("masterVolume", 0.25)
	bus.Publish(events.EventSettingsReplaced, nil)

	msg := readMessage(t, conn)
	if msg.Action != ActionSettingsUpdated {
		t.Fatalf("action = %q", msg.Action)
	}
	if msg.Settings["masterVolume"] != float64(0.25) {
		t.Fatalf("snapshot = %v", msg.Settings)
	}
}

func TestDetectRole(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		userAgent string
		want      string
	}{
		{"explicit player", "role=player", "Mozilla/5.0", RolePlayer},
		{"explicit remote", "role=remote", "Mozilla/5.0 OBS/30.0", RoleRemote},
		{"obs user agent", "", "Mozilla/5.0 (...) OBS/30.0.2", RolePlayer},
		{"plain browser", "", "Mozilla/5.0", RoleRemote},
		{"unknown role value", "role=admin", "Mozilla/5.0", RoleRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws?"+tt.query, nil)
			r.Header.Set("User-Agent", tt.userAgent)
			if got := detectRole(r); got != tt.want {
				t.Fatalf("detectRole = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	h, _, _, url := newTestHub(t)

	conn, _ := dial(t, url)
	if h.ClientCount() != 1 {
		t.Fatalf("count = %d, want 1", h.ClientCount())
	}

	conn.Close(websocket.StatusNormalClosure, "")
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
