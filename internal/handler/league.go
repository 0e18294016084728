package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"numduel/internal/service"
)

// LeagueHandler serves league lifecycle and leaderboard endpoints.
type LeagueHandler struct {
	leagues *service.LeagueService
}

// NewLeagueHandler creates a new LeagueHandler.
func NewLeagueHandler(leagues *service.LeagueService) *LeagueHandler {
	return &LeagueHandler{leagues: leagues}
}

type createLeagueRequest struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	AssistedMode bool   `json:"assistedMode"`
}

type leagueResponse struct {
	LeagueID string `json:"leagueId"`
	Name     string `json:"name"`
	Code     string `json:"code"`
}

func (h *LeagueHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createLeagueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	leagueID, league, err := h.leagues.Create(r.Context(), callerID(r), req.Name, req.DisplayName, req.AssistedMode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leagueResponse{LeagueID: leagueID, Name: league.Name, Code: league.Code})
}

type joinLeagueRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
}

func (h *LeagueHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinLeagueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	leagueID, league, err := h.leagues.Join(r.Context(), callerID(r), req.Code, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leagueResponse{LeagueID: leagueID, Name: league.Name, Code: league.Code})
}

func (h *LeagueHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	if err := h.leagues.Leave(r.Context(), callerID(r), chi.URLParam(r, "leagueID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *LeagueHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	league, err := h.leagues.Get(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, league)
}

func (h *LeagueHandler) HandleStandings(w http.ResponseWriter, r *http.Request) {
	standings, err := h.leagues.Standings(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

func (h *LeagueHandler) HandleMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.leagues.MatchHistory(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}
