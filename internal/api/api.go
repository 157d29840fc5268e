package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/config"
	"github.com/pushgate/pushgate/internal/event"
	"github.com/pushgate/pushgate/internal/hub"
	"github.com/pushgate/pushgate/internal/store"
)

type API struct {
	cfg     *config.Config
	store   *store.Store
	hub     *hub.Service
	limiter *heartbeatLimiter
	log     zerolog.Logger
}

func New(cfg *config.Config, st *store.Store, svc *hub.Service, log zerolog.Logger) *API {
	return &API{
		cfg:     cfg,
		store:   st,
		hub:     svc,
		limiter: newHeartbeatLimiter(cfg.API.HeartbeatRatePerMin),
		log:     log.With().Str("component", "api").Logger(),
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Get("/api/v1/stream", a.handleStream)
		r.Post("/api/v1/heartbeat", a.handleHeartbeat)

		r.Post("/api/v1/alarms", a.handleCreateAlarm)
		r.Get("/api/v1/alarms", a.handleListAlarms)
		r.Put("/api/v1/alarms/{id}/read", a.handleMarkAlarmRead)

		r.Post("/api/v1/notices", a.handleCreateNotice)
		r.Get("/api/v1/notices", a.handleListNotices)
	})

	return r
}

// handleHeartbeat records a client-initiated liveness signal for all of the
// caller's connections. Empty body; rate-limited per user.
func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := memberID(r)
	if !a.limiter.allow(id) {
		http.Error(w, "too many heartbeats", http.StatusTooManyRequests)
		return
	}
	a.hub.RecordClientHeartbeat(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateAlarm persists the alarm first, then pushes it. Delivery
// problems never fail the request: the alarm exists either way and an
// offline user picks it up from the backlog on the next subscribe.
func (a *API) handleCreateAlarm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64  `json:"member_id"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.MemberID == 0 || req.Message == "" {
		http.Error(w, "member_id and message required", http.StatusBadRequest)
		return
	}

	alarm, err := a.store.CreateAlarm(r.Context(), req.MemberID, string(event.KindAlarm), req.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := a.hub.Notify(req.MemberID, event.New(event.KindAlarm, alarm)); err != nil {
		a.log.Error().Err(err).Str("alarm", alarm.ID).Msg("alarm event rejected")
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(alarm)
}

func (a *API) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	alarms, err := a.store.ListAlarmsForMember(r.Context(), memberID(r), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(alarms)
}

func (a *API) handleMarkAlarmRead(w http.ResponseWriter, r *http.Request) {
	alarmID := chi.URLParam(r, "id")
	if err := a.store.MarkAlarmRead(r.Context(), memberID(r), alarmID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateNotice persists the notice, then fans it out to the group's
// connected members.
func (a *API) handleCreateNotice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID int64  `json:"group_id"`
		Title   string `json:"title"`
		Body    string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.GroupID == 0 || req.Title == "" {
		http.Error(w, "group_id and title required", http.StatusBadRequest)
		return
	}

	notice, err := a.store.CreateNotice(r.Context(), req.GroupID, req.Title, req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := a.hub.NotifyGroup(req.GroupID, event.New(event.KindNotice, notice)); err != nil {
		a.log.Error().Err(err).Str("notice", notice.ID).Msg("notice event rejected")
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(notice)
}

func (a *API) handleListNotices(w http.ResponseWriter, r *http.Request) {
	groupIDStr := r.URL.Query().Get("group_id")
	if groupIDStr == "" {
		http.Error(w, "group_id required", http.StatusBadRequest)
		return
	}
	groupID, err := strconv.ParseInt(groupIDStr, 10, 64)
	if err != nil {
		http.Error(w, "bad group_id", http.StatusBadRequest)
		return
	}
	notices, err := a.store.ListNoticesForGroup(r.Context(), groupID, 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(notices)
}

func errStatus(err error) int {
	if errors.Is(err, store.ErrNoMember) {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
