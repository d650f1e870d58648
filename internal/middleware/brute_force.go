package middleware

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/httputil"
)

// Lockout thresholds. A single key is locked after a few failures; an address
// trying many different keys gets a larger allowance.
const (
	keyMaxFailures  = 5
	addrMaxFailures = 20

	failureWindow   = 15 * time.Minute
	lockoutDuration = 5 * time.Minute
	cleanupInterval = time.Minute
	maxTracked      = 10000
)

type failures struct {
	count    int
	first    time.Time
	lockedAt time.Time
}

func (f *failures) locked(now time.Time) bool {
	return !f.lockedAt.IsZero() && now.Sub(f.lockedAt) < lockoutDuration
}

func (f *failures) expired(now time.Time) bool {
	if !f.lockedAt.IsZero() {
		return now.Sub(f.lockedAt) >= lockoutDuration
	}
	return now.Sub(f.first) >= failureWindow
}

// lockoutTable counts failures per subject. Callers hold the guard's mutex.
type lockoutTable struct {
	limit   int
	entries map[string]*failures
}

func newLockoutTable(limit int) *lockoutTable {
	return &lockoutTable{limit: limit, entries: make(map[string]*failures)}
}

// fail records a failure and reports whether it triggered a lockout.
func (t *lockoutTable) fail(subject string, now time.Time) bool {
	f, ok := t.entries[subject]
	if !ok || now.Sub(f.first) > failureWindow {
		t.entries[subject] = &failures{count: 1, first: now}
		return t.limit <= 1
	}

	f.count++
	if f.count >= t.limit && f.lockedAt.IsZero() {
		f.lockedAt = now
		return true
	}
	return false
}

func (t *lockoutTable) locked(subject string, now time.Time) bool {
	f, ok := t.entries[subject]
	return ok && f.locked(now)
}

func (t *lockoutTable) sweep(now time.Time) {
	for k, f := range t.entries {
		if f.expired(now) {
			delete(t.entries, k)
		}
	}

	if over := len(t.entries) - maxTracked; over > 0 {
		keys := make([]string, 0, len(t.entries))
		for k := range t.entries {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b string) int {
			return t.entries[a].first.Compare(t.entries[b].first)
		})
		for _, k := range keys[:over] {
			delete(t.entries, k)
		}
	}
}

// BruteForceGuard locks out API keys and client addresses that fail
// authentication repeatedly.
type BruteForceGuard struct {
	mu    sync.Mutex
	keys  *lockoutTable
	addrs *lockoutTable
	now   func() time.Time
	log   *logrus.Logger
}

// NewBruteForceGuard creates a guard whose cleanup goroutine stops when ctx
// is cancelled.
func NewBruteForceGuard(ctx context.Context, log *logrus.Logger) *BruteForceGuard {
	g := &BruteForceGuard{
		keys:  newLockoutTable(keyMaxFailures),
		addrs: newLockoutTable(addrMaxFailures),
		now:   time.Now,
		log:   log,
	}
	go g.cleanupLoop(ctx)
	return g
}

// Blocked reports whether the key or the address is locked out. Either may
// be empty.
func (g *BruteForceGuard) Blocked(apiKey, addr string) bool {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if apiKey != "" && g.keys.locked(hashKey(apiKey), now) {
		return true
	}
	return addr != "" && g.addrs.locked(addr, now)
}

// Fail records a failed authentication of apiKey from addr.
func (g *BruteForceGuard) Fail(apiKey, addr string) {
	now := g.now()
	kh := hashKey(apiKey)

	g.mu.Lock()
	keyLocked := g.keys.fail(kh, now)
	addrLocked := addr != "" && g.addrs.fail(addr, now)
	g.mu.Unlock()

	if keyLocked {
		g.log.WithField("key_hash", kh[:16]+"...").Warn("api key locked out after repeated auth failures")
	}
	if addrLocked {
		g.log.WithField("client_ip", addr).Warn("client address locked out after repeated auth failures")
	}
}

// Succeed clears the failures of apiKey. Address failures are kept so a
// valid key does not unlock an address that is guessing others.
func (g *BruteForceGuard) Succeed(apiKey string) {
	kh := hashKey(apiKey)

	g.mu.Lock()
	delete(g.keys.entries, kh)
	g.mu.Unlock()
}

func (g *BruteForceGuard) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := g.now()
			g.mu.Lock()
			g.keys.sweep(now)
			g.addrs.sweep(now)
			g.mu.Unlock()
		}
	}
}

// BruteForceMiddleware rejects requests from locked-out keys or addresses
// before they reach authentication.
func BruteForceMiddleware(guard *BruteForceGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if guard.Blocked(ExtractBearerToken(c), c.ClientIP()) {
			httputil.RespondError(c, http.StatusTooManyRequests, "rate_limited", "too many failed authentication attempts")
			return
		}

		c.Next()
	}
}
