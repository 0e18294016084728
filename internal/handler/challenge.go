package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"numduel/internal/service"
)

// ChallengeHandler serves direct league challenges.
type ChallengeHandler struct {
	challenges *service.ChallengeService
}

// NewChallengeHandler creates a new ChallengeHandler.
func NewChallengeHandler(challenges *service.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges}
}

type sendChallengeRequest struct {
	TargetID string `json:"targetId"`
	LeagueID string `json:"leagueId"`
}

func (h *ChallengeHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendChallengeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	challengeID, err := h.challenges.Send(r.Context(), callerID(r), req.TargetID, req.LeagueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"challengeId": challengeID})
}

func (h *ChallengeHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.challenges.Accept(r.Context(), callerID(r), chi.URLParam(r, "challengeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

func (h *ChallengeHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	if err := h.challenges.Decline(r.Context(), callerID(r), chi.URLParam(r, "challengeID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ChallengeHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.challenges.Cancel(r.Context(), callerID(r), chi.URLParam(r, "challengeID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ChallengeHandler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	inbox, err := h.challenges.Inbox(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}
