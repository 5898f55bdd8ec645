package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// streamImport handles GET /api/v1/imports/{id}/stream. Each session
// snapshot is sent as a server-sent event; the stream ends after the
// terminal snapshot or when the client goes away.
func (s *Server) streamImport(w http.ResponseWriter, r *http.Request) {
	sess, apiErr := s.lookup(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, internalError("streaming unsupported", nil))
		return
	}

	updates, err := s.deps.Tracker.Stream(r.Context(), sess.ID)
	if err != nil {
		writeError(w, notFound("import session", sess.ID))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snap := range updates {
		data, err := json.Marshal(snap)
		if err != nil {
			s.deps.Logger.Error("encode progress", "session_id", snap.ID, "error", err)
			continue
		}
		event := "progress"
		if snap.Status.Terminal() {
			event = string(snap.Status)
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			// Client is gone; r.Context() cancellation deregisters the stream.
			return
		}
		flusher.Flush()
	}
}
