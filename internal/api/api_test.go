package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/auth"
	"github.com/pushgate/pushgate/internal/config"
	"github.com/pushgate/pushgate/internal/event"
	"github.com/pushgate/pushgate/internal/hub"
)

const testSecret = "api-test-secret"

type fakeMembers struct {
	groups map[int64]int64
}

func (f *fakeMembers) GroupIDForMember(_ context.Context, userID int64) (int64, error) {
	return f.groups[userID], nil
}

// newTestAPI wires a hub with a fake member lookup. The relational store is
// nil: the handlers under test never touch it.
func newTestAPI(t *testing.T, heartbeatPerMin int) (*API, *hub.Service) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Auth.Secret = testSecret
	cfg.API.HeartbeatRatePerMin = heartbeatPerMin

	tracker := hub.NewActivityTracker()
	registry := hub.NewRegistry(8, tracker, zerolog.Nop())
	backlog := hub.NewBacklog(100, zerolog.Nop())
	dispatcher := hub.NewDispatcher(registry, backlog, tracker, zerolog.Nop())
	svc := hub.NewService(registry, backlog, dispatcher, tracker, &fakeMembers{groups: map[int64]int64{}}, zerolog.Nop())

	return New(cfg, nil, svc, zerolog.Nop()), svc
}

func mintToken(t *testing.T, memberID int64) string {
	t.Helper()
	tok, err := auth.Mint(testSecret, memberID, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return tok
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	a, _ := newTestAPI(t, 60)
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		resp, err := http.Post(srv.URL+"/api/v1/heartbeat", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		t.Parallel()
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/heartbeat", nil)
		req.Header.Set("Authorization", "Bearer junk")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("healthz is open", func(t *testing.T) {
		t.Parallel()
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})
}

func TestHeartbeatEndpoint(t *testing.T) {
	t.Parallel()

	a, _ := newTestAPI(t, 1) // burst of one so the second call trips the limiter
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	tok := mintToken(t, 7)
	post := func() int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/heartbeat", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	if got := post(); got != http.StatusNoContent {
		t.Fatalf("first heartbeat status = %d, want 204", got)
	}
	if got := post(); got != http.StatusTooManyRequests {
		t.Fatalf("second heartbeat status = %d, want 429", got)
	}
}

func TestStreamEndpoint(t *testing.T) {
	t.Parallel()

	a, svc := newTestAPI(t, 60)
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// EventSource cannot set headers, so the stream accepts ?token=.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream?token="+mintToken(t, 7), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readUntilEvent := func(kind string) string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("stream read failed waiting for %s: %v", kind, err)
			}
			if strings.TrimSpace(line) == "event: "+kind {
				data, err := reader.ReadString('\n')
				if err != nil {
					t.Fatalf("data read failed: %v", err)
				}
				return strings.TrimSpace(data)
			}
		}
	}

	// Marker first.
	marker := readUntilEvent("MESSAGE")
	if !strings.Contains(marker, "connection_id") {
		t.Errorf("marker data = %q, want connection_id payload", marker)
	}

	// Then a live alarm.
	if err := svc.Notify(7, event.New(event.KindAlarm, map[string]string{"msg": "hi"})); err != nil {
		t.Fatalf("Notify() = %v", err)
	}
	data := readUntilEvent("ALARM")
	if !strings.Contains(data, `"msg":"hi"`) {
		t.Errorf("alarm data = %q, want payload msg=hi", data)
	}
}
