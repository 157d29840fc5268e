package hub

import (
	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/event"
)

// Dispatcher routes one event to one user, one group, or everyone.
// Delivery never raises to the caller: malformed events are logged and
// dropped, push failures fall back to the backlog.
type Dispatcher struct {
	registry *Registry
	backlog  *Backlog
	tracker  *ActivityTracker
	log      zerolog.Logger
}

func NewDispatcher(registry *Registry, backlog *Backlog, tracker *ActivityTracker, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		backlog:  backlog,
		tracker:  tracker,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// SendToUser delivers ev to every live channel of userID, or queues it when
// the user is offline. A failure on one channel does not stop delivery to
// the user's other channels; any failed channel causes the event to be
// queued exactly once. A successful push doubles as a liveness signal.
func (d *Dispatcher) SendToUser(userID int64, ev event.Event) {
	if err := ev.Validate(); err != nil {
		d.log.Error().Err(err).Int64("user", userID).Msg("rejecting event")
		return
	}

	chans := d.registry.LiveChannelsFor(userID)
	if len(chans) == 0 {
		d.backlog.Enqueue(userID, ev)
		return
	}

	failed := false
	for _, ch := range chans {
		if err := ch.Send(ev); err != nil {
			failed = true
			d.log.Warn().Err(err).
				Int64("user", userID).
				Str("conn", ch.ConnectionID()).
				Str("event", ev.ID).
				Msg("push failed")
			continue
		}
		d.tracker.Touch(ch.ConnectionID())
	}
	if failed {
		d.backlog.Enqueue(userID, ev)
	}
}

// SendToGroup fans ev out to every member with a live connection in the
// group. An empty or unknown group is a no-op.
func (d *Dispatcher) SendToGroup(groupID int64, ev event.Event) {
	if err := ev.Validate(); err != nil {
		d.log.Error().Err(err).Int64("group", groupID).Msg("rejecting event")
		return
	}
	for _, userID := range d.registry.MembersOf(groupID) {
		d.SendToUser(userID, ev)
	}
}

// Broadcast sends ev to every currently-registered user. Heartbeat use
// only; broadcasts are not queued for offline users.
func (d *Dispatcher) Broadcast(ev event.Event) {
	if err := ev.Validate(); err != nil {
		d.log.Error().Err(err).Msg("rejecting event")
		return
	}
	for _, userID := range d.registry.UserIDs() {
		d.SendToUser(userID, ev)
	}
}
