// Package live streams case events to connected officer consoles over
// websockets.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opensource-finance/casewatch/internal/auth"
	"github.com/opensource-finance/casewatch/internal/domain"
	"github.com/opensource-finance/casewatch/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// Event types.
const (
	EventFiled        = "complaint.filed"
	EventTransitioned = "complaint.transitioned"
)

// Event is one message written to a console.
type Event struct {
	Type        string          `json:"type"`
	ComplaintID string          `json:"complaintId"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data"`
}

type client struct {
	conn        *websocket.Conn
	send        chan *Event
	complaintID string
	officerID   string
}

// Feed fans bus events out to websocket clients. Clients may narrow the
// feed to one complaint with ?complaint=<id>.
type Feed struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	subs    []domain.Subscription
	closed  bool
}

// NewFeed creates a feed. An empty origins list accepts any origin.
func NewFeed(origins ...string) *Feed {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// Watch subscribes the feed to complaint events on bus.
func (f *Feed) Watch(ctx context.Context, bus domain.EventBus) error {
	topics := map[string]string{
		domain.TopicComplaintFiled:        EventFiled,
		domain.TopicComplaintTransitioned: EventTransitioned,
	}
	for topic, typ := range topics {
		sub, err := bus.SubscribeAll(ctx, topic, f.relay(typ))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		f.mu.Lock()
		f.subs = append(f.subs, sub)
		f.mu.Unlock()
	}
	return nil
}

func (f *Feed) relay(typ string) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		var ref struct {
			ComplaintID string `json:"complaintId"`
		}
		if err := json.Unmarshal(msg.Payload, &ref); err != nil {
			return fmt.Errorf("decode %s event: %w", typ, err)
		}
		f.Broadcast(&Event{
			Type:        typ,
			ComplaintID: ref.ComplaintID,
			Timestamp:   time.Unix(0, msg.Timestamp).UTC(),
			Data:        json.RawMessage(msg.Payload),
		})
		return nil
	}
}

// Broadcast queues ev for every matching client. Clients whose buffer is
// full are disconnected.
func (f *Feed) Broadcast(ev *Event) {
	var slow []*client

	f.mu.RLock()
	for c := range f.clients {
		if c.complaintID != "" && c.complaintID != ev.ComplaintID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	f.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("live feed client too slow, disconnecting", "officer_id", c.officerID)
		f.remove(c)
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Debug("live feed upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:        conn,
		send:        make(chan *Event, sendBuffer),
		complaintID: r.URL.Query().Get("complaint"),
	}
	if s, ok := auth.SessionFromContext(r.Context()); ok {
		c.officerID = s.OfficerID
	}

	if !f.add(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	slog.Info("live feed client connected", "officer_id", c.officerID, "complaint_id", c.complaintID)

	go f.writePump(c)
	f.readPump(c)
}

// readPump only services control frames; consoles do not send data.
func (f *Feed) readPump(c *client) {
	defer f.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("live feed read error", "officer_id", c.officerID, "error", err)
			}
			return
		}
	}
}

func (f *Feed) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) add(c *client) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.clients[c] = struct{}{}
	metrics.LiveClients.Inc()
	return true
}

// remove is safe to call more than once per client.
func (f *Feed) remove(c *client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; !ok {
		return
	}
	delete(f.clients, c)
	close(c.send)
	metrics.LiveClients.Dec()
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Close unsubscribes from the bus and disconnects every client.
func (f *Feed) Close() error {
	f.mu.Lock()
	f.closed = true
	subs := f.subs
	f.subs = nil
	clients := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	for _, c := range clients {
		f.remove(c)
	}
	return nil
}
