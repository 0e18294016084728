package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"numduel/internal/apperr"
	"numduel/internal/store"
)

const ssePingInterval = 30 * time.Second

// EventsHandler streams record changes to the client over server-sent
// events. Every caller is subscribed to their own notification record and
// challenge inbox; query parameters add session and league feeds.
type EventsHandler struct {
	store store.Store
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(st store.Store) *EventsHandler {
	return &EventsHandler{store: st}
}

type changeEvent struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.New(apperr.Internal, "streaming unsupported"))
		return
	}

	playerID := callerID(r)
	prefixes := []string{
		store.NotificationPath(playerID),
		store.InboxPrefix(playerID),
	}
	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		prefixes = append(prefixes, store.SessionPath(sessionID))
	}
	if leagueID := r.URL.Query().Get("league"); leagueID != "" {
		prefixes = append(prefixes, store.LeagueMemberPrefix(leagueID))
		prefixes = append(prefixes, store.LeagueMatchPrefix(leagueID))
	}

	merged := make(chan store.Event, 16)
	done := r.Context().Done()
	for _, prefix := range prefixes {
		events, cancel := h.store.Watch(prefix)
		defer cancel()
		go func() {
			for {
				select {
				case ev, open := <-events:
					if !open {
						return
					}
					select {
					case merged <- ev:
					case <-done:
						return
					}
				case <-done:
					return
				}
			}
		}()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debug().Str("player_id", playerID).Strs("prefixes", prefixes).Msg("event stream opened")

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Debug().Str("player_id", playerID).Msg("event stream closed")
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-merged:
			body, err := json.Marshal(changeEvent{Path: ev.Path, Data: ev.Data})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", body); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
