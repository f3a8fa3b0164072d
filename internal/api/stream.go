package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/goalrunner/internal/events"
)

// wireEvent is the JSON form of a bus event.
type wireEvent struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id"`
	TaskID    string       `json:"task_id,omitempty"`
	Error     string       `json:"error,omitempty"`
	Event     events.Event `json:"event"`
}

func toWire(ev events.Event) wireEvent {
	w := wireEvent{Type: ev.EventType(), SessionID: ev.Session(), TaskID: ev.TaskID(), Event: ev}
	switch e := ev.(type) {
	case events.TaskFailedEvent:
		if e.Err != nil {
			w.Error = e.Err.Error()
		}
	case events.SessionStateEvent:
		if e.Err != nil {
			w.Error = e.Err.Error()
		}
	}
	return w
}

// handleSessionEvents streams one session's events as Server-Sent Events
// until the client leaves or the session finishes.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.Store().Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := s.bus.SubscribeAll(0)
	defer s.bus.Unsubscribe(sub)

	sendEvent(w, flusher, "status", sess.Status())

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			sendEvent(w, flusher, "status", sess.Status())
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.Session() != sess.ID {
				continue
			}
			sendEvent(w, flusher, ev.EventType(), toWire(ev))
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("WARNING: failed to encode %s event: %v", name, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	flusher.Flush()
}
