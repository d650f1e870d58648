package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout     = 10 * time.Second
	inboundLimit     = 1024
	clientSendBuffer = 64

	// A socket lives at most one working day; the key is rechecked hourly.
	maxSocketAge     = 12 * time.Hour
	recheckEvery     = time.Hour
	recheckTimeout   = 5 * time.Second
	keepaliveEvery   = 45 * time.Second
	keepaliveTimeout = 15 * time.Second
	maxRunIDLen      = 64
)

// KeyValidator checks that an API key still belongs to a registered client.
type KeyValidator interface {
	GetClientByAPIKey(ctx context.Context, apiKey string) (string, error)
}

// Client is one event subscriber. It receives the events of APIClientID,
// optionally narrowed to a single backup run.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	log         *logrus.Entry
	APIClientID string
	apiKey      string
	validator   KeyValidator
	run         atomic.Pointer[string]
	closeOnce   sync.Once
	openedAt    time.Time
}

// NewClient creates a subscriber for conn. A non-empty runID restricts the
// socket to that run's events until the peer sends a new watch request.
func NewClient(hub *Hub, conn *websocket.Conn, validator KeyValidator, apiClientID, apiKey, runID string) *Client {
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, clientSendBuffer),
		log:         hub.log.WithField("client_id", apiClientID),
		APIClientID: apiClientID,
		apiKey:      apiKey,
		validator:   validator,
		openedAt:    time.Now(),
	}
	c.watch(runID)

	return c
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// watch narrows delivery to runID; an empty ID watches every run.
func (c *Client) watch(runID string) {
	if len(runID) > maxRunIDLen {
		runID = runID[:maxRunIDLen]
	}
	c.run.Store(&runID)
}

// wants reports whether an event for runID should reach this socket.
func (c *Client) wants(runID string) bool {
	w := c.run.Load()

	return w == nil || *w == "" || *w == runID
}

// ReadPump consumes inbound frames until the connection closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.CloseNow() //nolint:errcheck // best-effort close on teardown
	}()

	c.conn.SetReadLimit(inboundLimit)

	for {
		_, frame, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				c.log.WithField("status", status).Debug("event subscriber disconnected")
			}

			return
		}

		c.handleMessage(frame)
	}
}

// inbound is a control frame sent by the subscriber.
type inbound struct {
	Type  string `json:"type"`
	RunID string `json:"run_id"`
}

// handleMessage answers ping with pong and applies watch requests. Anything
// else is ignored.
func (c *Client) handleMessage(frame []byte) {
	var msg inbound
	if err := json.Unmarshal(frame, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		c.reply(`{"type":"pong"}`)
	case "watch":
		c.watch(msg.RunID)
		c.reply(`{"type":"watching"}`)
	}
}

func (c *Client) reply(s string) {
	select {
	case c.send <- []byte(s):
	default:
	}
}

// WritePump delivers queued events. It closes the socket when the key stops
// validating, the peer stops answering pings, or the socket grows too old.
func (c *Client) WritePump(ctx context.Context) {
	defer c.conn.CloseNow() //nolint:errcheck // best-effort close on teardown

	expiry := time.NewTimer(time.Until(c.openedAt.Add(maxSocketAge)))
	defer expiry.Stop()

	recheck := time.NewTicker(recheckEvery)
	defer recheck.Stop()

	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				c.log.WithError(err).Debug("event write failed")

				return
			}
		case <-keepalive.C:
			pingCtx, cancel := context.WithTimeout(ctx, keepaliveTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.WithError(err).Debug("event subscriber stopped answering pings")

				return
			}
		case <-recheck.C:
			if !c.keyStillValid(ctx) {
				c.conn.Close(websocket.StatusPolicyViolation, "api key no longer valid") //nolint:errcheck // best-effort

				return
			}
		case <-expiry.C:
			c.conn.Close(websocket.StatusGoingAway, "subscription expired, reconnect") //nolint:errcheck // best-effort

			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return c.conn.Write(writeCtx, websocket.MessageText, msg)
}

func (c *Client) keyStillValid(ctx context.Context) bool {
	if c.validator == nil {
		return true
	}

	checkCtx, cancel := context.WithTimeout(ctx, recheckTimeout)
	defer cancel()

	id, err := c.validator.GetClientByAPIKey(checkCtx, c.apiKey)
	if err != nil || id != c.APIClientID {
		c.log.Info("closing event subscription: api key revoked")

		return false
	}

	return true
}
