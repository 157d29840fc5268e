package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/event"
)

type fakeMembers struct {
	groups map[int64]int64
	err    error
}

func (f *fakeMembers) GroupIDForMember(_ context.Context, userID int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.groups[userID], nil
}

func newTestService(f *fixture, members *fakeMembers) *Service {
	return NewService(f.registry, f.backlog, f.dispatcher, f.tracker, members, zerolog.Nop())
}

func receiveOne(t *testing.T, sub *Subscription) event.Event {
	t.Helper()
	select {
	case ev, open := <-sub.Events():
		if !open {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return event.Event{}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	t.Run("first event is the connection marker", func(t *testing.T) {
		t.Parallel()
		f := newFixture(8, 100)
		svc := newTestService(f, &fakeMembers{groups: map[int64]int64{7: 0}})

		sub, err := svc.Subscribe(context.Background(), 7)
		if err != nil {
			t.Fatalf("Subscribe() = %v", err)
		}
		defer sub.Close()

		marker := receiveOne(t, sub)
		if marker.Kind != event.KindMessage {
			t.Fatalf("first event kind = %s, want MESSAGE marker", marker.Kind)
		}
		payload, ok := marker.Payload.(map[string]string)
		if !ok || payload["connection_id"] != sub.ConnectionID() {
			t.Errorf("marker payload = %v, want connection_id %s", marker.Payload, sub.ConnectionID())
		}
	})

	t.Run("failed identity resolution creates nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(8, 100)
		svc := newTestService(f, &fakeMembers{err: errors.New("unknown member")})

		if _, err := svc.Subscribe(context.Background(), 7); err == nil {
			t.Fatal("Subscribe() = nil error, want rejection")
		}
		if got := len(f.registry.LiveChannelsFor(7)); got != 0 {
			t.Fatalf("rejected subscribe left %d connections behind", got)
		}
		if f.tracker.Len() != 0 {
			t.Fatalf("rejected subscribe left %d activity records behind", f.tracker.Len())
		}
	})

	t.Run("group bound at subscribe time routes group notifications", func(t *testing.T) {
		t.Parallel()
		f := newFixture(8, 100)
		svc := newTestService(f, &fakeMembers{groups: map[int64]int64{1: 5, 2: 5}})

		s1, err := svc.Subscribe(context.Background(), 1)
		if err != nil {
			t.Fatal(err)
		}
		defer s1.Close()
		s2, err := svc.Subscribe(context.Background(), 2)
		if err != nil {
			t.Fatal(err)
		}
		defer s2.Close()
		receiveOne(t, s1) // markers
		receiveOne(t, s2)

		if err := svc.NotifyGroup(5, event.New(event.KindNotice, "team")); err != nil {
			t.Fatalf("NotifyGroup() = %v", err)
		}
		for i, sub := range []*Subscription{s1, s2} {
			ev := receiveOne(t, sub)
			if ev.Kind != event.KindNotice || ev.Payload != "team" {
				t.Errorf("member %d got %v, want NOTICE(team)", i+1, ev)
			}
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(8, 100)
		svc := newTestService(f, &fakeMembers{groups: map[int64]int64{}})
		sub, err := svc.Subscribe(context.Background(), 9)
		if err != nil {
			t.Fatal(err)
		}
		sub.Close()
		sub.Close()
		if got := len(f.registry.LiveChannelsFor(9)); got != 0 {
			t.Fatalf("channels after double close = %d, want 0", got)
		}
	})
}

func TestOfflineBacklogFlush(t *testing.T) {
	t.Parallel()

	f := newFixture(8, 100)
	svc := newTestService(f, &fakeMembers{groups: map[int64]int64{7: 0}})

	// Notify while user 7 has no connection: the event must wait in the
	// backlog and arrive right after the marker on the next subscribe.
	if err := svc.Notify(7, event.New(event.KindNotice, "x")); err != nil {
		t.Fatalf("Notify() = %v", err)
	}

	sub, err := svc.Subscribe(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	marker := receiveOne(t, sub)
	if marker.Kind != event.KindMessage {
		t.Fatalf("first event = %s, want MESSAGE marker", marker.Kind)
	}
	flushed := receiveOne(t, sub)
	if flushed.Kind != event.KindNotice || flushed.Payload != "x" {
		t.Fatalf("flushed event = %v, want the queued NOTICE", flushed)
	}
	if f.backlog.Len(7) != 0 {
		t.Errorf("backlog depth after flush = %d, want 0", f.backlog.Len(7))
	}

	// Live events dispatched after the flush arrive after it.
	if err := svc.Notify(7, event.New(event.KindAlarm, "live")); err != nil {
		t.Fatal(err)
	}
	live := receiveOne(t, sub)
	if live.Kind != event.KindAlarm {
		t.Fatalf("post-flush event = %s, want ALARM", live.Kind)
	}
}

func TestNotifyValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(8, 100)
	svc := newTestService(f, &fakeMembers{groups: map[int64]int64{}})

	if err := svc.Notify(7, event.New(event.KindAlarm, nil)); !errors.Is(err, event.ErrInvalid) {
		t.Errorf("Notify(malformed) = %v, want ErrInvalid", err)
	}
	if err := svc.NotifyGroup(5, event.New(event.KindNotice, "")); !errors.Is(err, event.ErrInvalid) {
		t.Errorf("NotifyGroup(malformed) = %v, want ErrInvalid", err)
	}
	if err := svc.NotifyAll(event.New(event.Kind("NOPE"), "x")); !errors.Is(err, event.ErrInvalid) {
		t.Errorf("NotifyAll(malformed) = %v, want ErrInvalid", err)
	}

	// Delivery to an offline user is not an error.
	if err := svc.Notify(7, event.New(event.KindAlarm, "ok")); err != nil {
		t.Errorf("Notify(offline user) = %v, want nil", err)
	}
}

func TestRecordClientHeartbeat(t *testing.T) {
	t.Parallel()

	f := newFixture(8, 100)
	svc := newTestService(f, &fakeMembers{groups: map[int64]int64{7: 0}})

	sub, err := svc.Subscribe(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	svc.RecordClientHeartbeat(7)

	if stale := f.tracker.StaleBefore(cutoff); len(stale) != 0 {
		t.Fatalf("records stale after client heartbeat: %v", stale)
	}
}
