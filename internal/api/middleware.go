package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pushgate/pushgate/internal/auth"
)

type ctxKey int

const memberIDKey ctxKey = 0

// memberID returns the authenticated member id set by requireAuth.
func memberID(r *http.Request) int64 {
	id, _ := r.Context().Value(memberIDKey).(int64)
	return id
}

// requireAuth resolves the caller's identity from a Bearer token. The SSE
// endpoint also accepts ?token= because EventSource cannot set headers.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		if h := r.Header.Get("Authorization"); h != "" {
			tokenString, _ = strings.CutPrefix(h, "Bearer ")
		}
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
		id, err := auth.Verify(a.cfg.Auth.Secret, tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), memberIDKey, id)))
	})
}

// heartbeatLimiter rate-limits the client heartbeat endpoint per user so a
// misbehaving client cannot hammer the tracker.
type heartbeatLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newHeartbeatLimiter(perMinute int) *heartbeatLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &heartbeatLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *heartbeatLimiter) allow(userID int64) bool {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
