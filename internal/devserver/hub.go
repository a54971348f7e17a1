package devserver

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
	clientBuffer      = 8
)

// Hub fans push messages out to connected SSE and WebSocket clients.
type Hub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*pushClient
	closed   bool
	lastErr  *Message
	recorder metrics.Recorder
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

type pushClient struct {
	id   int
	ch   chan Message
	done chan struct{}
}

// NewHub returns an empty hub.
func NewHub(recorder metrics.Recorder, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:  map[int]*pushClient{},
		recorder: metrics.OrNoop(recorder),
		logger:   logger,
		upgrader: websocket.Upgrader{
			// The dev server is bound to a development host; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// register adds a client and returns it with the message to replay on
// connect, if any.
func (h *Hub) register() (*pushClient, *Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, false
	}
	c := &pushClient{id: h.nextID, ch: make(chan Message, clientBuffer), done: make(chan struct{})}
	h.nextID++
	h.clients[c.id] = c
	h.recorder.SetPushClients(len(h.clients))
	return c, h.lastErr, true
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
		h.recorder.SetPushClients(len(h.clients))
	}
}

// Broadcast delivers msg to every client. Clients whose buffer is full are
// dropped. A build-error message is replayed to clients that connect later,
// until the next message clears it.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if msg.Kind == KindBuildError {
		m := msg
		h.lastErr = &m
	} else {
		h.lastErr = nil
	}
	snapshot := make([]*pushClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- msg:
		default:
			h.remove(c.id)
			dropped++
		}
	}
	h.logger.Debug("Push broadcast",
		slog.String("kind", string(msg.Kind)),
		logfields.Generation(msg.Generation),
		logfields.Clients(len(snapshot)-dropped),
		slog.Int("dropped", dropped))
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	ids := make([]int, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.remove(id)
	}
}

// ServeSSE streams messages as server-sent events.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	client, replay, ok := h.register()
	if !ok {
		http.Error(w, "push channel shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.remove(client.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	write := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			h.logger.Debug("SSE write", logfields.Error(err))
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	writeMsg := func(m Message) bool {
		b, err := json.Marshal(m)
		if err != nil {
			h.logger.Warn("SSE encode", logfields.Error(err))
			return true
		}
		return write("data: " + string(b) + "\n\n")
	}

	if !write(": connected\n\n") {
		return
	}
	if replay != nil && !writeMsg(*replay) {
		return
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-hb.C:
			if !write(": ping\n\n") {
				return
			}
		case m := <-client.ch:
			if !writeMsg(m) {
				return
			}
		}
	}
}

// ServeWS streams messages as WebSocket text frames.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", logfields.Error(err))
		return
	}
	defer conn.Close()

	client, replay, ok := h.register()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		return
	}
	defer h.remove(client.id)

	// Incoming frames are discarded; the read loop only notices disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(m Message) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			h.logger.Debug("WebSocket write", logfields.Error(err))
			return false
		}
		return true
	}
	if replay != nil && !send(*replay) {
		return
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()
	for {
		select {
		case <-gone:
			return
		case <-client.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		case <-hb.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case m := <-client.ch:
			if !send(m) {
				return
			}
		}
	}
}
