package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"numduel/internal/apperr"
)

type ctxKey int

const playerIDKey ctxKey = iota

// Auth issues and verifies the opaque caller identity: a random player id
// carried in a signed bearer token. There is no profile beyond the id.
type Auth struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewAuth creates a new Auth instance.
func NewAuth(secret string, tokenTTL time.Duration) *Auth {
	return &Auth{secret: []byte(secret), tokenTTL: tokenTTL}
}

type guestResponse struct {
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
}

// HandleGuest mints a fresh player identity and its token.
func (a *Auth) HandleGuest(w http.ResponseWriter, r *http.Request) {
	playerID := uuid.NewString()
	token, err := a.sign(playerID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "failed to issue token", err))
		return
	}
	writeJSON(w, http.StatusOK, guestResponse{PlayerID: playerID, Token: token})
}

func (a *Auth) sign(playerID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   playerID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", apperr.New(apperr.Unauthenticated, "invalid token")
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	if claims.Subject == "" {
		return "", apperr.New(apperr.Unauthenticated, "invalid token")
	}
	return claims.Subject, nil
}

// Middleware authenticates every request and stores the caller identity
// in the request context. SSE clients may pass the token as a query
// parameter because EventSource cannot set headers.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, apperr.New(apperr.Unauthenticated, "missing credentials"))
			return
		}
		playerID, err := a.verify(token)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerIDKey, playerID)))
	})
}

// callerID extracts the authenticated player id from the context.
func callerID(r *http.Request) string {
	id, _ := r.Context().Value(playerIDKey).(string)
	return id
}
