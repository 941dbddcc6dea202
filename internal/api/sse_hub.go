package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"hypocycle/domain/core"
	"hypocycle/ports"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// allCycles is the subscription key for clients that did not ask for a
// specific cycle.
const allCycles core.CycleID = ""

// SSEHub fans cycle events out to Server-Sent Events clients
type SSEHub struct {
	clients   map[core.CycleID]map[chan ports.CycleEvent]bool
	clientsMu sync.RWMutex
	broadcast chan ports.CycleEvent
	done      chan struct{}
	closeOnce sync.Once
	keepAlive time.Duration
	logger    *zap.Logger
}

var _ ports.CycleEventSink = (*SSEHub)(nil)

// NewSSEHub creates a hub and starts its broadcast loop
func NewSSEHub(logger *zap.Logger) *SSEHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := &SSEHub{
		clients:   make(map[core.CycleID]map[chan ports.CycleEvent]bool),
		broadcast: make(chan ports.CycleEvent, 100),
		done:      make(chan struct{}),
		keepAlive: 30 * time.Second,
		logger:    logger,
	}

	go hub.run()
	return hub
}

func (h *SSEHub) run() {
	for {
		select {
		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for _, key := range []core.CycleID{event.CycleID, allCycles} {
				for clientChan := range h.clients[key] {
					select {
					case clientChan <- event:
					default:
						h.logger.Warn("client channel full, skipping event",
							zap.String("cycle_id", event.CycleID.String()),
							zap.String("event_type", event.Type))
					}
				}
			}
			h.clientsMu.RUnlock()
		case <-h.done:
			return
		}
	}
}

// Publish queues an event; it is dropped when the hub is saturated
func (h *SSEHub) Publish(event ports.CycleEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event", zap.String("event_type", event.Type))
	}
}

// Close stops the broadcast loop
func (h *SSEHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Subscribe registers a client for one cycle, or for every cycle when id is
// empty. The returned func unregisters it and closes the channel.
func (h *SSEHub) Subscribe(id core.CycleID) (<-chan ports.CycleEvent, func()) {
	ch := make(chan ports.CycleEvent, 16)

	h.clientsMu.Lock()
	if h.clients[id] == nil {
		h.clients[id] = make(map[chan ports.CycleEvent]bool)
	}
	h.clients[id][ch] = true
	h.logger.Debug("client registered",
		zap.String("cycle_id", id.String()),
		zap.Int("clients", len(h.clients[id])))
	h.clientsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.clientsMu.Lock()
			defer h.clientsMu.Unlock()
			if clients, ok := h.clients[id]; ok {
				delete(clients, ch)
				if len(clients) == 0 {
					delete(h.clients, id)
				}
			}
			close(ch)
		})
	}
}

// ClientCount returns the number of clients subscribed under id
func (h *SSEHub) ClientCount(id core.CycleID) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[id])
}

// HandleSSE streams cycle events. An optional cycle_id query parameter
// limits the stream to one cycle.
func (h *SSEHub) HandleSSE(c *gin.Context) {
	id := core.CycleID(c.Query("cycle_id"))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	events, unsubscribe := h.Subscribe(id)
	defer unsubscribe()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				return true
			}
			c.SSEvent("cycle", string(payload))
			return true

		case <-time.After(h.keepAlive):
			c.SSEvent("ping", `{"status": "alive", "timestamp": "`+time.Now().Format(time.RFC3339)+`"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}
