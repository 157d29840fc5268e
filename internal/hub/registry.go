package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry owns every live connection. Per-user channel slices keep
// insertion order (delivery order across one user's tabs is subscribe
// order); the group index is a reverse map for O(1) group fan-out.
//
// All mutation goes through Subscribe/Unsubscribe/Evict; callers only ever
// see snapshots, never the live collections.
type Registry struct {
	mu sync.RWMutex
	// users maps userID -> channels in subscribe order; groups is the
	// reverse index groupID -> userID -> live connection count.
	users   map[int64][]*Channel
	groups  map[int64]map[int64]int
	buf     int
	tracker *ActivityTracker
	log     zerolog.Logger
}

func NewRegistry(buf int, tracker *ActivityTracker, log zerolog.Logger) *Registry {
	if buf <= 0 {
		buf = 256
	}
	return &Registry{
		users:   make(map[int64][]*Channel),
		groups:  make(map[int64]map[int64]int),
		buf:     buf,
		tracker: tracker,
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Subscribe opens a new connection for userID. groupID is bound once here
// and never re-resolved; a group change takes effect on the next subscribe.
// The matching ActivityRecord is created before the channel is visible to
// dispatch.
func (r *Registry) Subscribe(userID, groupID int64) *Channel {
	ch := newChannel(userID, groupID, uuid.New().String(), r.buf)

	r.mu.Lock()
	r.tracker.Track(userID, ch.id)
	r.users[userID] = append(r.users[userID], ch)
	if groupID != 0 {
		if r.groups[groupID] == nil {
			r.groups[groupID] = make(map[int64]int)
		}
		r.groups[groupID][userID]++
	}
	r.mu.Unlock()

	r.log.Debug().Int64("user", userID).Int64("group", groupID).Str("conn", ch.id).Msg("subscribed")
	return ch
}

// Unsubscribe removes one connection. Idempotent: an absent connection id
// is a no-op, never an error. When the user's last connection in a group
// goes away the group index entry is removed too.
func (r *Registry) Unsubscribe(userID, groupID int64, connID string) {
	r.mu.Lock()
	removed := r.removeLocked(userID, groupID, connID)
	r.mu.Unlock()

	if removed != nil {
		removed.close()
		r.log.Debug().Int64("user", userID).Str("conn", connID).Msg("unsubscribed")
	}
}

// Evict is the forced-removal path used by the stale-connection sweep; the
// group is resolved from the stored channel rather than passed in.
func (r *Registry) Evict(userID int64, connID string) {
	r.mu.Lock()
	var groupID int64
	for _, ch := range r.users[userID] {
		if ch.id == connID {
			groupID = ch.groupID
			break
		}
	}
	removed := r.removeLocked(userID, groupID, connID)
	r.mu.Unlock()

	if removed != nil {
		removed.close()
		r.log.Info().Int64("user", userID).Str("conn", connID).Msg("evicted stale connection")
	}
}

// removeLocked unlinks the channel and its ActivityRecord. Returns the
// channel so close() can run outside any logging concerns, or nil when the
// connection was already gone.
func (r *Registry) removeLocked(userID, groupID int64, connID string) *Channel {
	chans := r.users[userID]
	idx := -1
	for i, ch := range chans {
		if ch.id == connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	removed := chans[idx]
	rest := append(chans[:idx:idx], chans[idx+1:]...)
	if len(rest) == 0 {
		delete(r.users, userID)
	} else {
		r.users[userID] = rest
	}

	r.tracker.Forget(connID)

	if groupID != 0 {
		if members, ok := r.groups[groupID]; ok {
			members[userID]--
			if members[userID] <= 0 {
				delete(members, userID)
			}
			if len(members) == 0 {
				delete(r.groups, groupID)
			}
		}
	}
	return removed
}

// LiveChannelsFor returns a snapshot of the user's open channels in
// subscribe order. Empty slice when none.
func (r *Registry) LiveChannelsFor(userID int64) []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chans := r.users[userID]
	out := make([]*Channel, len(chans))
	copy(out, chans)
	return out
}

// MembersOf returns a snapshot of the user ids with at least one live
// connection in the group.
func (r *Registry) MembersOf(groupID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.groups[groupID]
	out := make([]int64, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// UserIDs returns every user with at least one live connection.
func (r *Registry) UserIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	return out
}

// CloseAll tears down every connection; used on shutdown after the
// supervisor has stopped.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var all []*Channel
	for _, chans := range r.users {
		all = append(all, chans...)
	}
	r.users = make(map[int64][]*Channel)
	r.groups = make(map[int64]map[int64]int)
	for _, ch := range all {
		r.tracker.Forget(ch.id)
	}
	r.mu.Unlock()

	for _, ch := range all {
		ch.close()
	}
	if len(all) > 0 {
		r.log.Info().Int("connections", len(all)).Msg("closed all connections")
	}
}
