package server

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/tabletouch/internal/surface"
)

const (
	clientBuffer = 16
	writeWait    = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type contactMessage struct {
	ControlID   string  `json:"control_id"`
	ControlType string  `json:"control_type"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Position    float64 `json:"position"`
	Difference  float64 `json:"difference"`
}

type eventMessage struct {
	Type      string           `json:"type"`
	Timestamp int64            `json:"timestamp"`
	Contacts  []contactMessage `json:"contacts"`
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventsHandler pushes touch changes to WebSocket clients. It is registered
// with the pipeline as a contact listener and only broadcasts when the set of
// touched controls changes.
type EventsHandler struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	last    string

	dropped atomic.Int64
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(log logrus.FieldLogger) *EventsHandler {
	return &EventsHandler{
		log:     log,
		clients: make(map[*eventClient]struct{}),
	}
}

// HandleContacts broadcasts events when the touched set differs from the
// previous frame. Slow clients miss messages rather than stall the pipeline.
func (h *EventsHandler) HandleContacts(events []surface.ContactEvent) {
	key := contactKey(events)

	h.mu.Lock()
	if key == h.last {
		h.mu.Unlock()
		return
	}
	h.last = key
	clients := make([]*eventClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	if len(clients) == 0 {
		return
	}

	msg := eventMessage{Type: "release", Timestamp: time.Now().UnixMilli(), Contacts: []contactMessage{}}
	if len(events) > 0 {
		msg.Type = "touch"
		msg.Timestamp = events[0].Timestamp
	}
	for _, e := range events {
		msg.Contacts = append(msg.Contacts, contactMessage{
			ControlID:   e.ControlID,
			ControlType: e.ControlType.String(),
			X:           e.Point.X,
			Y:           e.Point.Y,
			Position:    e.Position(),
			Difference:  e.Difference,
		})
	}

	data, err := jsoniter.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Warn("failed to encode contact event")
		return
	}
	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

func contactKey(events []surface.ContactEvent) string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ControlID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade error")
		return
	}
	defer conn.Close()

	c := &eventClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(done)
	}()

	go func() {
		for {
			select {
			case <-done:
				return
			case msg := <-c.send:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
