package eventstream

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"poe-core/internal/hostiface"
)

func newTestServer(t *testing.T, h *Hub) (*httptest.Server, string) {
	t.Helper()
	router := mux.NewRouter()
	h.Mount(router, "/ws")
	ts := httptest.NewServer(router)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	return ts, wsURL
}

func dial(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestPublishReachesSubscriber(t *testing.T) {
	h := New(nil)
	defer h.Close()

	ts, wsURL := newTestServer(t, h)
	defer ts.Close()

	conn := dial(t, wsURL)
	defer conn.Close()

	// give the server goroutine a moment to register the subscriber
	time.Sleep(20 * time.Millisecond)
	h.Publish(hostiface.Event{Type: "jail", Attributes: map[string]string{"operator": "0xabc"}})

	var got hostiface.Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "jail" || got.Attributes["operator"] != "0xabc" {
		t.Fatalf("got %+v, want jail event", got)
	}
}

func TestTypeFilterExcludesUnwantedEvents(t *testing.T) {
	h := New(nil)
	defer h.Close()

	ts, wsURL := newTestServer(t, h)
	defer ts.Close()

	conn := dial(t, wsURL+"?types=epoch")
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	h.Publish(hostiface.Event{Type: "jail"})
	h.Publish(hostiface.Event{Type: "epoch", Attributes: map[string]string{"epoch": "3"}})

	var got hostiface.Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "epoch" {
		t.Fatalf("got type %q, want only epoch events to pass the filter", got.Type)
	}
}
