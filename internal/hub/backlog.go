package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/event"
)

type backlogEntry struct {
	ev         event.Event
	enqueuedAt time.Time
}

// Backlog is a per-user bounded FIFO of events that could not be delivered
// live. Once a user's queue is at capacity the oldest entry is evicted
// first; the newest event is never the one dropped.
type Backlog struct {
	mu     sync.Mutex
	cap    int
	queues map[int64][]backlogEntry
	log    zerolog.Logger
}

func NewBacklog(capacity int, log zerolog.Logger) *Backlog {
	if capacity <= 0 {
		capacity = 100
	}
	return &Backlog{
		cap:    capacity,
		queues: make(map[int64][]backlogEntry),
		log:    log.With().Str("component", "backlog").Logger(),
	}
}

// Enqueue appends ev for userID, evicting the oldest entry if the queue is
// already full.
func (b *Backlog) Enqueue(userID int64, ev event.Event) {
	b.mu.Lock()
	q := b.queues[userID]
	if len(q) >= b.cap {
		dropped := q[0]
		q = q[1:]
		b.log.Warn().
			Int64("user", userID).
			Str("event", dropped.ev.ID).
			Time("enqueued_at", dropped.enqueuedAt).
			Msg("backlog full, evicting oldest")
	}
	b.queues[userID] = append(q, backlogEntry{ev: ev, enqueuedAt: time.Now()})
	b.mu.Unlock()
}

// Drain returns all queued events for userID in enqueue order and clears
// the queue. Atomic with respect to concurrent Enqueue: an enqueue lands
// either before the boundary (returned here) or after (kept for the next
// drain), never lost or duplicated.
func (b *Backlog) Drain(userID int64) []event.Event {
	b.mu.Lock()
	q := b.queues[userID]
	delete(b.queues, userID)
	b.mu.Unlock()

	if len(q) == 0 {
		return nil
	}
	out := make([]event.Event, len(q))
	for i, e := range q {
		out[i] = e.ev
	}
	return out
}

// Len reports the queue depth for userID.
func (b *Backlog) Len(userID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[userID])
}
