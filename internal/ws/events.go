package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Backup progress event types.
const (
	EventBackupStarted   = "backup.started"
	EventBackupCompleted = "backup.completed"
	EventBackupFailed    = "backup.failed"
)

// Event is the structured message sent to WebSocket clients.
type Event struct {
	Type     string          `json:"type"`
	ID       uint64          `json:"id"`
	ClientID string          `json:"-"`
	RunID    string          `json:"run_id,omitempty"`
	Data     json.RawMessage `json:"data"`
	Time     time.Time       `json:"time"`
}

// eventSequence hands out monotonic event IDs per API client.
type eventSequence struct {
	mu       sync.Mutex
	counters map[string]*atomic.Uint64
}

func newEventSequence() *eventSequence {
	return &eventSequence{counters: make(map[string]*atomic.Uint64)}
}

func (s *eventSequence) next(clientID string) uint64 {
	s.mu.Lock()
	counter, ok := s.counters[clientID]
	if !ok {
		counter = &atomic.Uint64{}
		s.counters[clientID] = counter
	}
	s.mu.Unlock()

	return counter.Add(1)
}
