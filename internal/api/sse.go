package api

import (
	"net/http"
)

// handleStream is the long-lived push endpoint. The subscription lives
// until the client disconnects (request context) or the hub closes the
// channel (shutdown, stale-connection sweep).
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := memberID(r)
	sub, err := a.hub.Subscribe(r.Context(), id)
	if err != nil {
		a.log.Warn().Err(err).Int64("user", id).Msg("subscribe rejected")
		http.Error(w, "subscribe rejected", errStatus(err))
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment to open stream
	_, _ = w.Write([]byte(": ok\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			_, _ = w.Write([]byte("id: " + ev.ID + "\n"))
			_, _ = w.Write([]byte("event: " + string(ev.Kind) + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(ev.MarshalWire())
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
