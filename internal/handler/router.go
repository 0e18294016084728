package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps bundles everything the router needs.
type Deps struct {
	Auth        *Auth
	Sessions    *SessionHandler
	Matchmaking *MatchmakingHandler
	Leagues     *LeagueHandler
	Challenges  *ChallengeHandler
	Events      *EventsHandler
}

// NewRouter builds the HTTP routing table.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/auth/guest", d.Auth.HandleGuest)

	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Middleware)

		r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", d.Sessions.HandleGet)
			r.Post("/coinflip", d.Sessions.HandleCoinFlip)
			r.Post("/guess", d.Sessions.HandleGuess)
			r.Post("/heartbeat", d.Sessions.HandleHeartbeat)
			r.Post("/claim-disconnect", d.Sessions.HandleClaimDisconnect)
			r.Post("/skip", d.Sessions.HandleSkip)
			r.Post("/forfeit", d.Sessions.HandleForfeit)
			r.Post("/league-result", d.Sessions.HandleLeagueResult)
		})

		r.Route("/api/queue", func(r chi.Router) {
			r.Post("/", d.Matchmaking.HandleJoin)
			r.Post("/leave", d.Matchmaking.HandleLeave)
			r.Get("/counts", d.Matchmaking.HandleCounts)
		})
		r.Delete("/api/notifications", d.Matchmaking.HandleClearNotification)

		r.Route("/api/leagues", func(r chi.Router) {
			r.Post("/", d.Leagues.HandleCreate)
			r.Post("/join", d.Leagues.HandleJoin)
			r.Route("/{leagueID}", func(r chi.Router) {
				r.Get("/", d.Leagues.HandleGet)
				r.Delete("/", d.Leagues.HandleLeave)
				r.Get("/standings", d.Leagues.HandleStandings)
				r.Get("/matches", d.Leagues.HandleMatches)
			})
		})

		r.Route("/api/challenges", func(r chi.Router) {
			r.Post("/", d.Challenges.HandleSend)
			r.Get("/inbox", d.Challenges.HandleInbox)
			r.Post("/{challengeID}/accept", d.Challenges.HandleAccept)
			r.Post("/{challengeID}/decline", d.Challenges.HandleDecline)
			r.Post("/{challengeID}/cancel", d.Challenges.HandleCancel)
		})

		r.Get("/api/events", d.Events.HandleEvents)
	})

	return r
}
