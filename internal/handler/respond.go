// Package handler exposes the coordination layer as an HTTP API: one
// endpoint per operation plus a server-sent-events change feed.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"numduel/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, "malformed request body", err)
	}
	return nil
}

// writeError maps a typed failure onto the wire. FailedPrecondition
// failures are part of normal two-client races and logged quietly.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.Internal {
		log.Error().Err(err).Msg("request failed")
	} else {
		log.Debug().Err(err).Msg("request rejected")
	}
	writeJSON(w, apperr.HTTPStatus(code), map[string]string{
		"code":  string(code),
		"error": apperr.MessageOf(err),
	})
}
