// Package eventstream fans the three engines' operation events out to
// websocket subscribers, adapted from the teacher's subscription hub
// (a pendingTx-style broadcast loop feeding per-connection channels)
// generalized from vechain-thor's transaction/block/event readers to a
// single flat Event stream with type filtering.
package eventstream

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"poe-core/internal/hostiface"
)

const (
	queueSize  = 64
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 7) / 10
)

// Hub fans out engine events to websocket subscribers.
type Hub struct {
	upgrader *websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	publish chan hostiface.Event
	done    chan struct{}
	wg      sync.WaitGroup
}

type subscriber struct {
	ch     chan hostiface.Event
	types  map[string]struct{} // empty means no filter, all types pass
}

func (s *subscriber) wants(ev hostiface.Event) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[ev.Type]
	return ok
}

// New builds a Hub and starts its dispatch loop. allowedOrigins mirrors
// the teacher's CheckOrigin allowlist; "*" allows any origin.
func New(allowedOrigins []string) *Hub {
	h := &Hub{
		upgrader: &websocket.Upgrader{
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == origin || allowed == "*" {
						return true
					}
				}
				return false
			},
		},
		subs:    make(map[*subscriber]struct{}),
		publish: make(chan hostiface.Event, queueSize),
		done:    make(chan struct{}),
	}

	h.wg.Add(1)
	go h.dispatchLoop()
	return h
}

func (h *Hub) dispatchLoop() {
	defer h.wg.Done()
	for {
		select {
		case ev := <-h.publish:
			h.mu.Lock()
			for s := range h.subs {
				if !s.wants(ev) {
					continue
				}
				select {
				case s.ch <- ev:
				default:
					// slow consumer, drop rather than block the hub
				}
			}
			h.mu.Unlock()
		case <-h.done:
			return
		}
	}
}

// Publish enqueues ev for delivery to matching subscribers. It never
// blocks the caller (an engine's Execute/Sudo path); a full queue drops
// the oldest pending event.
func (h *Hub) Publish(ev hostiface.Event) {
	select {
	case h.publish <- ev:
	default:
		select {
		case <-h.publish:
		default:
		}
		select {
		case h.publish <- ev:
		default:
		}
	}
}

// PublishAll enqueues every event in resp, if resp is non-nil.
func (h *Hub) PublishAll(resp *hostiface.Response) {
	if resp == nil {
		return
	}
	for _, ev := range resp.Events {
		h.Publish(ev)
	}
}

func (h *Hub) addSubscriber(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

func (h *Hub) removeSubscriber(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func parseTypes(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

func (h *Hub) handleSubscribe(w http.ResponseWriter, req *http.Request) {
	h.wg.Add(1)
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(4 * 1024)

	sub := &subscriber{
		ch:    make(chan hostiface.Event, queueSize),
		types: parseTypes(req.URL.Query().Get("types")),
	}
	h.addSubscriber(sub)
	defer h.removeSubscriber(sub)

	closed := make(chan struct{})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case ev := <-sub.ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-h.done:
			closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			conn.WriteMessage(websocket.CloseMessage, closeMsg)
			return
		}
	}
}

// Mount registers the subscription endpoint under pathPrefix + "/events".
func (h *Hub) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/events").
		Methods(http.MethodGet).
		Name("WS /events").
		HandlerFunc(h.handleSubscribe)
}

// Close stops the dispatch loop and every open connection.
func (h *Hub) Close() {
	close(h.done)
	h.wg.Wait()
}
