package hub

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/event"
)

// SupervisorConfig carries the periodic-task knobs.
type SupervisorConfig struct {
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
	ConnectionTimeout time.Duration
}

// Supervisor runs the two recurring hub tasks: the server heartbeat
// broadcast and the stale-connection sweep. Both are cron jobs tied to the
// process lifetime; Stop cancels them before the registry is torn down.
type Supervisor struct {
	cfg        SupervisorConfig
	dispatcher *Dispatcher
	registry   *Registry
	tracker    *ActivityTracker
	cron       *cron.Cron
	log        zerolog.Logger
}

func NewSupervisor(cfg SupervisorConfig, dispatcher *Dispatcher, registry *Registry, tracker *ActivityTracker, log zerolog.Logger) *Supervisor {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 3 * time.Minute
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Minute
	}
	return &Supervisor{
		cfg:        cfg,
		dispatcher: dispatcher,
		registry:   registry,
		tracker:    tracker,
		log:        log.With().Str("component", "supervisor").Logger(),
	}
}

// Start schedules both jobs. Returns the scheduling error, which only
// occurs on a malformed interval.
func (s *Supervisor) Start() error {
	c := cron.New()
	if _, err := c.AddFunc("@every "+s.cfg.HeartbeatInterval.String(), s.heartbeat); err != nil {
		return err
	}
	if _, err := c.AddFunc("@every "+s.cfg.CleanupInterval.String(), s.cleanup); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info().
		Dur("heartbeat", s.cfg.HeartbeatInterval).
		Dur("cleanup", s.cfg.CleanupInterval).
		Dur("timeout", s.cfg.ConnectionTimeout).
		Msg("supervisor started")
	return nil
}

// Stop cancels the schedule and waits for in-flight jobs, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.log.Info().Msg("supervisor stopped")
}

// heartbeat broadcasts a synthetic HEARTBEAT event. Successful pushes
// refresh activity records, so this doubles as the server-side liveness
// probe.
func (s *Supervisor) heartbeat() {
	s.dispatcher.Broadcast(event.New(event.KindHeartbeat, nil))
}

func (s *Supervisor) cleanup() {
	s.sweep(time.Now())
}

// sweep force-unsubscribes every connection whose last-seen time is older
// than the connection timeout. This is the only path that removes
// connections the client did not close cleanly.
func (s *Supervisor) sweep(now time.Time) {
	cutoff := now.Add(-s.cfg.ConnectionTimeout)
	stale := s.tracker.StaleBefore(cutoff)
	for _, rec := range stale {
		s.registry.Evict(rec.UserID, rec.ConnectionID)
	}
	if len(stale) > 0 {
		s.log.Info().Int("connections", len(stale)).Msg("swept stale connections")
	}
}
