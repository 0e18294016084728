package handler

import (
	"net/http"

	"numduel/internal/service"
)

// MatchmakingHandler serves the queue endpoints.
type MatchmakingHandler struct {
	matchmaking *service.MatchmakingService
}

// NewMatchmakingHandler creates a new MatchmakingHandler.
func NewMatchmakingHandler(matchmaking *service.MatchmakingService) *MatchmakingHandler {
	return &MatchmakingHandler{matchmaking: matchmaking}
}

type joinQueueRequest struct {
	AssistedMode bool   `json:"assistedMode"`
	LeagueID     string `json:"leagueId,omitempty"`
}

type joinQueueResponse struct {
	EntryID string               `json:"entryId"`
	Match   *service.MatchResult `json:"match,omitempty"`
}

// HandleJoin enqueues the caller and immediately attempts a pairing.
// When a compatible opponent is already waiting the response carries the
// match; otherwise the caller waits for a push notification.
func (h *MatchmakingHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinQueueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	playerID := callerID(r)
	entryID, err := h.matchmaking.JoinQueue(r.Context(), playerID, req.AssistedMode, req.LeagueID)
	if err != nil {
		writeError(w, err)
		return
	}
	match, err := h.matchmaking.TryMatch(r.Context(), playerID, entryID, req.AssistedMode, req.LeagueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinQueueResponse{EntryID: entryID, Match: match})
}

type leaveQueueRequest struct {
	EntryID string `json:"entryId"`
}

func (h *MatchmakingHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	var req leaveQueueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.matchmaking.LeaveQueue(r.Context(), callerID(r), req.EntryID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *MatchmakingHandler) HandleCounts(w http.ResponseWriter, r *http.Request) {
	assisted, unassisted, err := h.matchmaking.QueueCounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"assisted": assisted, "unassisted": unassisted})
}

func (h *MatchmakingHandler) HandleClearNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.matchmaking.ClearNotification(r.Context(), callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
