package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/pushgate/pushgate/internal/event"
)

var (
	// ErrBufferFull means the subscriber is not draining fast enough.
	ErrBufferFull = errors.New("channel buffer full")
	// ErrChannelClosed means the connection has already been torn down.
	ErrChannelClosed = errors.New("channel closed")
)

// Channel is the writable end of one open push connection. One user may
// hold several Channels at once (multi-tab). Sends never block: a full
// buffer or a closed channel reports an error instead.
type Channel struct {
	userID    int64
	groupID   int64
	id        string
	createdAt time.Time

	mu     sync.Mutex
	closed bool
	ch     chan event.Event
}

func newChannel(userID, groupID int64, id string, buf int) *Channel {
	return &Channel{
		userID:    userID,
		groupID:   groupID,
		id:        id,
		createdAt: time.Now(),
		ch:        make(chan event.Event, buf),
	}
}

// ConnectionID returns the opaque id assigned at subscribe time.
func (c *Channel) ConnectionID() string { return c.id }

// UserID returns the owning user.
func (c *Channel) UserID() int64 { return c.userID }

// GroupID returns the group bound at subscribe time (0 = none). It never
// changes for the life of the connection.
func (c *Channel) GroupID() int64 { return c.groupID }

// CreatedAt returns the subscribe time.
func (c *Channel) CreatedAt() time.Time { return c.createdAt }

// Events is drained by the transport layer until the channel closes.
func (c *Channel) Events() <-chan event.Event { return c.ch }

// Send pushes without blocking. The closed-flag check and the send happen
// under the same lock as close(), so Send never races a concurrent close.
func (c *Channel) Send(ev event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.ch <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// close is idempotent; only the registry calls it.
func (c *Channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
