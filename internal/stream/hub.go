package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
	"github.com/speedwagon-io/motordiag/internal/model"
)

var ErrHubStopped = errors.New("stream hub stopped")

// Message is the envelope written to every stream client.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans diagnoses out to connected websocket clients. Client state is
// owned by the Run goroutine.
type Hub struct {
	log        *slog.Logger
	upgrader   websocket.Upgrader
	clients    map[*client]struct{}
	count      atomic.Int64
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	onChange   func(int)
}

type Option func(*Hub)

// WithClientGauge reports the client count after every change.
func WithClientGauge(fn func(int)) Option {
	return func(h *Hub) {
		h.onChange = fn
	}
}

func NewHub(log *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		onChange:   func(int) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run serves register, unregister and broadcast requests until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.changed()
			h.log.Debug("stream client registered", slog.String("remote", c.conn.RemoteAddr().String()))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Debug("stream client unregistered", slog.String("remote", c.conn.RemoteAddr().String()))
			}

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					h.log.Warn("stream client too slow, dropping", slog.String("remote", c.conn.RemoteAddr().String()))
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.changed()
}

func (h *Hub) changed() {
	n := len(h.clients)
	h.onChange(n)
	h.count.Store(int64(n))
}

func (h *Hub) Clients() int {
	return int(h.count.Load())
}

func (h *Hub) Broadcast(ctx context.Context, msgType string, payload any) error {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) BroadcastDiagnosis(ctx context.Context, d model.Diagnosis) error {
	return h.Broadcast(ctx, "diagnosis", d)
}

func (h *Hub) unregisterClient(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("stream upgrade failed", sl.Err(err))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
