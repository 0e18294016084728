package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"numduel/internal/apperr"
	"numduel/internal/service"
)

// SessionHandler exposes the in-match protocol over HTTP.
type SessionHandler struct {
	sessions *service.SessionService
	leagues  *service.LeagueService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, leagues *service.LeagueService) *SessionHandler {
	return &SessionHandler{sessions: sessions, leagues: leagues}
}

func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.SlotOf(callerID(r)) == "" {
		writeError(w, apperr.New(apperr.PermissionDenied, "not a participant of this session"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type coinFlipRequest struct {
	Pick int `json:"pick"`
}

func (h *SessionHandler) HandleCoinFlip(w http.ResponseWriter, r *http.Request) {
	var req coinFlipRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.sessions.CoinFlipPick(r.Context(), callerID(r), chi.URLParam(r, "sessionID"), req.Pick); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type guessRequest struct {
	Guess string `json:"guess"`
}

func (h *SessionHandler) HandleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.sessions.SubmitGuess(r.Context(), callerID(r), chi.URLParam(r, "sessionID"), req.Guess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SessionHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Heartbeat(r.Context(), callerID(r), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *SessionHandler) HandleClaimDisconnect(w http.ResponseWriter, r *http.Request) {
	claimed, err := h.sessions.ClaimDisconnectWin(r.Context(), callerID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"claimed": claimed})
}

func (h *SessionHandler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SkipTurn(r.Context(), callerID(r), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *SessionHandler) HandleForfeit(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Forfeit(r.Context(), callerID(r), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleLeagueResult posts this session's outcome to its league. Safe to
// call from both clients: only one caller ends up writing the stats.
func (h *SessionHandler) HandleLeagueResult(w http.ResponseWriter, r *http.Request) {
	alreadyUpdated, err := h.leagues.PostResult(r.Context(), callerID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"alreadyUpdated": alreadyUpdated})
}
