package hub

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/event"
)

// MemberLookup resolves a user's current group at subscribe time. It is
// the only call out of the hub; the relational store implements it.
type MemberLookup interface {
	// GroupIDForMember returns the user's group id, 0 when the user has no
	// group, or an error when the user is unknown.
	GroupIDForMember(ctx context.Context, userID int64) (int64, error)
}

// Service is the notification facade consumed by the transport layer and
// by business producers (alarm/notice creation). Producers treat Notify*
// as fire-and-forget: delivery failure never fails the caller, only
// malformed input does.
type Service struct {
	registry   *Registry
	backlog    *Backlog
	dispatcher *Dispatcher
	tracker    *ActivityTracker
	members    MemberLookup
	log        zerolog.Logger
}

func NewService(registry *Registry, backlog *Backlog, dispatcher *Dispatcher, tracker *ActivityTracker, members MemberLookup, log zerolog.Logger) *Service {
	return &Service{
		registry:   registry,
		backlog:    backlog,
		dispatcher: dispatcher,
		tracker:    tracker,
		members:    members,
		log:        log.With().Str("component", "hub").Logger(),
	}
}

// Subscription is one open push stream. Close is idempotent.
type Subscription struct {
	ch       *Channel
	registry *Registry
}

// Events is drained by the transport until the channel closes.
func (s *Subscription) Events() <-chan event.Event { return s.ch.Events() }

// ConnectionID returns the id assigned to this stream.
func (s *Subscription) ConnectionID() string { return s.ch.ConnectionID() }

// Close unsubscribes the connection. Safe to call more than once.
func (s *Subscription) Close() {
	s.registry.Unsubscribe(s.ch.UserID(), s.ch.GroupID(), s.ch.ConnectionID())
}

// Subscribe opens a push stream for userID. The user's group is resolved
// once here; a failed lookup rejects the subscribe and creates nothing.
// The new stream receives a connection-established marker, then every
// event queued while the user was offline, then live events.
func (s *Service) Subscribe(ctx context.Context, userID int64) (*Subscription, error) {
	groupID, err := s.members.GroupIDForMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve group for user %d: %w", userID, err)
	}

	ch := s.registry.Subscribe(userID, groupID)

	marker := event.New(event.KindMessage, map[string]string{"connection_id": ch.ConnectionID()})
	if err := ch.Send(marker); err != nil {
		// Fresh buffered channel; only a concurrent teardown can get here.
		s.log.Warn().Err(err).Str("conn", ch.ConnectionID()).Msg("marker push failed")
	}

	queued := s.backlog.Drain(userID)
	for _, ev := range queued {
		if err := ch.Send(ev); err != nil {
			// Keep the invariant: an event is delivered or queued, never lost.
			s.backlog.Enqueue(userID, ev)
			s.log.Warn().Err(err).Int64("user", userID).Str("event", ev.ID).Msg("backlog flush push failed")
		}
	}
	if len(queued) > 0 {
		s.log.Info().Int64("user", userID).Int("events", len(queued)).Msg("flushed backlog")
	}

	return &Subscription{ch: ch, registry: s.registry}, nil
}

// Notify sends ev to one user. Malformed events error; delivery failures
// do not.
func (s *Service) Notify(userID int64, ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	s.dispatcher.SendToUser(userID, ev)
	return nil
}

// NotifyGroup sends ev to every connected member of the group.
func (s *Service) NotifyGroup(groupID int64, ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	s.dispatcher.SendToGroup(groupID, ev)
	return nil
}

// NotifyAll sends ev to every connected user.
func (s *Service) NotifyAll(ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	s.dispatcher.Broadcast(ev)
	return nil
}

// RecordClientHeartbeat refreshes the activity records for all of the
// user's connections.
func (s *Service) RecordClientHeartbeat(userID int64) {
	s.tracker.TouchUser(userID)
}

// Shutdown tears down every live connection. The supervisor must already
// be stopped so the sweep cannot race the teardown.
func (s *Service) Shutdown() {
	s.registry.CloseAll()
}
