package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Stream relays the caller's newly inserted notifications as server-sent
// events until the client goes away.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.Feed == nil {
		writeError(w, http.StatusServiceUnavailable, "Realtime feed is not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	caller, _ := CallerFrom(r.Context())

	messages, stop := h.Feed.Listen(r.Context(), caller.UserID)
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	h.Log.DebugContext(r.Context(), "Notification stream opened", slog.String("user_id", caller.UserID))

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
