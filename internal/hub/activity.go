package hub

import (
	"sync"
	"time"
)

// ActivityRecord tracks when a connection was last observed alive, either
// via a successful push or an explicit client heartbeat.
type ActivityRecord struct {
	UserID       int64
	ConnectionID string
	LastSeen     time.Time
}

// ActivityTracker holds one record per live connection. The registry keeps
// it in lockstep with its own state: a connection is registered iff a
// record exists.
type ActivityTracker struct {
	mu      sync.Mutex
	records map[string]*ActivityRecord // keyed by connection id
}

func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{records: make(map[string]*ActivityRecord)}
}

// Track creates the record at subscribe time.
func (t *ActivityTracker) Track(userID int64, connID string) {
	t.mu.Lock()
	t.records[connID] = &ActivityRecord{UserID: userID, ConnectionID: connID, LastSeen: time.Now()}
	t.mu.Unlock()
}

// Touch refreshes one connection's last-seen time. No-op for unknown ids.
func (t *ActivityTracker) Touch(connID string) {
	t.mu.Lock()
	if r, ok := t.records[connID]; ok {
		r.LastSeen = time.Now()
	}
	t.mu.Unlock()
}

// TouchUser refreshes every connection owned by userID (client-initiated
// heartbeat signal).
func (t *ActivityTracker) TouchUser(userID int64) {
	now := time.Now()
	t.mu.Lock()
	for _, r := range t.records {
		if r.UserID == userID {
			r.LastSeen = now
		}
	}
	t.mu.Unlock()
}

// Forget drops the record. Idempotent.
func (t *ActivityTracker) Forget(connID string) {
	t.mu.Lock()
	delete(t.records, connID)
	t.mu.Unlock()
}

// StaleBefore returns copies of all records whose last-seen time is older
// than cutoff. Used by the cleanup sweep.
func (t *ActivityTracker) StaleBefore(cutoff time.Time) []ActivityRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ActivityRecord
	for _, r := range t.records {
		if r.LastSeen.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out
}

// Len reports the number of tracked connections.
func (t *ActivityTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
