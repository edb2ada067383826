// Package dedup drops MQTT payloads already seen within a TTL window.
// QoS 1 subscriptions may redeliver the same message; hashing the payload
// gives a stable key without relying on broker message IDs.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Deduper struct {
	mu    sync.Mutex
	clock clockwork.Clock
	ttl   time.Duration
	max   int
	seen  map[string]time.Time
	// order holds keys by insertion; with a fixed ttl that is also expiry order.
	order []entry
}

type entry struct {
	key string
	exp time.Time
}

// New builds a Deduper. Zero values fall back to 10 minutes and 10000 keys.
func New(ttl time.Duration, max int) *Deduper {
	return NewWithClock(ttl, max, clockwork.NewRealClock())
}

func NewWithClock(ttl time.Duration, max int, clock clockwork.Clock) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{clock: clock, ttl: ttl, max: max, seen: make(map[string]time.Time, max)}
}

// KeyFor hashes a payload into a dedup key.
func KeyFor(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}

// ShouldProcess reports whether id is new (or expired) and records it.
// An empty id is always processed.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	now := d.clock.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	exp := now.Add(d.ttl)
	d.seen[id] = exp
	d.order = append(d.order, entry{key: id, exp: exp})
	d.evict(now)
	return true
}

// ShouldProcessPayload is ShouldProcess keyed by the payload hash.
func (d *Deduper) ShouldProcessPayload(payload []byte) bool {
	return d.ShouldProcess(KeyFor(payload))
}

// Len is the number of tracked keys, expired or not.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evict drops expired keys and then the oldest live ones until at most max
// keys are tracked.
func (d *Deduper) evict(now time.Time) {
	for len(d.order) > 0 {
		e := d.order[0]
		cur, ok := d.seen[e.key]
		switch {
		case !ok || !cur.Equal(e.exp):
			// superseded by a later insert of the same key
		case !now.Before(e.exp) || len(d.seen) > d.max:
			delete(d.seen, e.key)
		default:
			return
		}
		d.order[0] = entry{}
		d.order = d.order[1:]
	}
}
