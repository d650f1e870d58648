// Package ws implements the WebSocket hub that fans backup progress events
// out to the connections of the API client that requested the backup.
package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/metrics"
)

// Hub channel buffer sizes.
const (
	broadcastBuffer = 256
	registerBuffer  = 64
)

// Connection caps.
const (
	maxConnections          = 1000
	maxConnectionsPerClient = 50
)

// clientBroadcast is sent through the broadcast channel to the Run goroutine.
type clientBroadcast struct {
	apiClientID string
	runID       string
	msg         []byte
}

// Hub manages active WebSocket connections and broadcasts messages.
// All connection map mutations happen exclusively in the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	perAPIKey  map[string]int
	register   chan *Client
	unregister chan *Client
	broadcast  chan clientBroadcast
	shutdown   chan struct{}
	done       chan struct{}
	count      atomic.Int64
	log        *logrus.Logger
	seq        *eventSequence
}

// NewHub creates a new Hub instance.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		perAPIKey:  make(map[string]int),
		register:   make(chan *Client, registerBuffer),
		unregister: make(chan *Client, registerBuffer),
		broadcast:  make(chan clientBroadcast, broadcastBuffer),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
		seq:        newEventSequence(),
	}
}

// drainTimeout is how long the hub waits for connections to flush after shutdown.
const drainTimeout = 3 * time.Second

// Run starts the hub event loop. It exits when Shutdown is called or the
// context is cancelled.
func (h *Hub) Run(ctx context.Context) { //nolint:gocognit,cyclop // connection-limit checks add branching.
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.drainClients()

			return
		case <-h.shutdown:
			h.drainClients()

			return

		case c := <-h.register:
			if len(h.clients) >= maxConnections {
				h.log.Warn("global connection limit reached, dropping connection")
				c.closeSend()
				continue
			}
			if h.perAPIKey[c.APIClientID] >= maxConnectionsPerClient {
				h.log.WithField("client_id", c.APIClientID).Warn("per-client connection limit reached, dropping connection")
				c.closeSend()
				continue
			}
			h.clients[c] = true
			h.perAPIKey[c.APIClientID]++
			h.updateCount()
			h.log.WithField("total", len(h.clients)).Info("websocket registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}
			h.updateCount()
			h.log.WithField("total", len(h.clients)).Info("websocket unregistered")

		case b := <-h.broadcast:
			for c := range h.clients {
				if c.APIClientID != b.apiClientID || !c.wants(b.runID) {
					continue
				}
				select {
				case c.send <- b.msg:
				default:
					h.remove(c)
				}
			}
			h.updateCount()
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	c.closeSend()
	h.perAPIKey[c.APIClientID]--
	if h.perAPIKey[c.APIClientID] <= 0 {
		delete(h.perAPIKey, c.APIClientID)
	}
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WSConnections.Set(float64(len(h.clients)))
}

// maxBroadcastPayload is the maximum allowed event payload size (4 KB).
const maxBroadcastPayload = 4096

// BroadcastToClient sends a message to every connection of one API client
// that watches runID. Oversized payloads are dropped with a warning.
func (h *Hub) BroadcastToClient(apiClientID, runID string, msg []byte) {
	if len(msg) > maxBroadcastPayload {
		h.log.WithFields(logrus.Fields{
			"client_id":    apiClientID,
			"payload_size": len(msg),
			"max_size":     maxBroadcastPayload,
		}).Warn("dropping oversized broadcast payload")

		return
	}
	select {
	case h.broadcast <- clientBroadcast{apiClientID: apiClientID, runID: runID, msg: msg}:
	default:
		h.log.Warn("broadcast channel full, dropping message")
	}
}

// Publish wraps data in a sequenced Event and broadcasts it to the
// connections of apiClientID watching runID.
func (h *Hub) Publish(eventType, apiClientID, runID string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.WithError(err).WithField("type", eventType).Error("failed to marshal event data")

		return
	}

	evt := Event{
		Type:     eventType,
		ID:       h.seq.next(apiClientID),
		ClientID: apiClientID,
		RunID:    runID,
		Data:     raw,
		Time:     time.Now().UTC(),
	}

	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal event")

		return
	}

	h.BroadcastToClient(apiClientID, runID, msg)
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	default:
		h.log.Warn("register channel full, dropping connection")
		c.closeSend()
	}
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	default:
	}
}

// ClientCount returns the number of connected sockets.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Shutdown sends a shutdown frame to every connection, waits for their write
// pumps to flush, then closes them. It blocks until the drain finishes or
// times out.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("connections", len(h.clients)).Info("draining WebSocket connections")

	shutdownMsg := []byte(`{"type":"shutdown","message":"server shutting down"}`)
	for c := range h.clients {
		select {
		case c.send <- shutdownMsg:
		default:
		}
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond) //nolint:mnd // poll interval
	defer ticker.Stop()

wait:
	for !h.drained() {
		select {
		case <-deadline:
			h.log.Warn("WebSocket drain timeout, closing remaining connections")

			break wait
		case <-ticker.C:
		}
	}

	for c := range h.clients {
		c.closeSend()
		delete(h.clients, c)
	}

	h.perAPIKey = make(map[string]int)
	h.updateCount()
}

func (h *Hub) drained() bool {
	for c := range h.clients {
		if len(c.send) > 0 {
			return false
		}
	}

	return true
}
