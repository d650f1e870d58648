package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

// Backup event types.
const (
	EventBackupStarted   = "backup.started"
	EventBackupCompleted = "backup.completed"
	EventBackupFailed    = "backup.failed"
)

// ErrStopEvents can be returned by a Subscribe callback to end the stream
// without reporting an error.
var ErrStopEvents = errors.New("stop events")

// Event is one message from the event stream.
type Event struct {
	Type  string          `json:"type"`
	ID    uint64          `json:"id"`
	RunID string          `json:"run_id,omitempty"`
	Data  json.RawMessage `json:"data"`
	Time  time.Time       `json:"time"`
}

// BackupEvent is the payload of backup events.
type BackupEvent struct {
	BackupID   string `json:"backup_id"`
	ActivityID int64  `json:"activity_id"`
	Status     string `json:"status"`
	Rows       int    `json:"rows,omitempty"`
	Location   string `json:"location,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Backup decodes the payload of a backup event.
func (e Event) Backup() (*BackupEvent, error) {
	var b BackupEvent
	if err := json.Unmarshal(e.Data, &b); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", e.Type, err)
	}
	return &b, nil
}

// Subscribe streams the backup events of the calling API client to fn until
// ctx is done or fn returns an error. A normal server close returns nil.
func (c *Client) Subscribe(ctx context.Context, fn func(Event) error) error {
	return c.SubscribeRun(ctx, "", fn)
}

// SubscribeRun is Subscribe narrowed by the server to the events of one run.
func (c *Client) SubscribeRun(ctx context.Context, runID string, fn func(Event) error) error {
	u, err := eventsURL(c.baseURL, runID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + c.apiKey}},
	})
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer conn.CloseNow() //nolint:errcheck // best-effort close on teardown

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read event: %w", err)
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.ID == 0 {
			continue
		}
		if err := fn(ev); err != nil {
			conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck // best-effort
			if errors.Is(err, ErrStopEvents) {
				return nil
			}
			return err
		}
	}
}

func eventsURL(base, runID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base URL scheme %q", u.Scheme)
	}
	u.Path += "/api/v1/ws"
	if runID != "" {
		u.RawQuery = url.Values{"run": {runID}}.Encode()
	}
	return u.String(), nil
}
