// Package service implements the multiplayer coordination logic:
// matchmaking, the game session state machine, challenges and league
// stats. Every mutation goes through a single store transaction on the
// entity's own record, so racing clients serialize instead of corrupting
// state. Transaction bodies are pure: timestamps and randomness are fixed
// before the transaction begins.
package service

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"numduel/internal/apperr"
	"numduel/internal/config"
	"numduel/internal/game"
	"numduel/internal/model"
	"numduel/internal/store"
)

// SessionService owns the lifecycle of one match from coin flip through
// play to a terminal result.
type SessionService struct {
	store store.Store
	cfg   config.GameConfig

	now func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewSessionService creates a new SessionService instance.
func NewSessionService(st store.Store, cfg config.GameConfig) *SessionService {
	return &SessionService{
		store: st,
		cfg:   cfg,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SessionService) nowMillis() int64 { return s.now().UnixMilli() }

// CreateSession generates the secret and house digit and persists a new
// session in the coin-flip phase. The secret is stored apart from the
// publicly readable session record.
func (s *SessionService) CreateSession(ctx context.Context, player1ID, player2ID string, assistedMode bool, leagueID string) (string, *model.Session, error) {
	s.rngMu.Lock()
	secret := game.GenerateSecret(s.rng, s.cfg.SecretLength)
	houseDigit := game.RandomHouseDigit(s.rng)
	s.rngMu.Unlock()

	id := uuid.NewString()
	now := s.nowMillis()

	sess := &model.Session{
		Status:       model.StatusCoinFlip,
		AssistedMode: assistedMode,
		Player1:      &model.Player{ID: player1ID, LastSeen: now},
		Player2:      &model.Player{ID: player2ID, LastSeen: now},
		CoinFlip:     model.CoinFlip{HouseDigit: houseDigit},
		Turns:        model.Turns{CurrentTurn: model.SlotPlayer1, TurnNumber: 1},
		LeagueID:     leagueID,
	}

	// The secret goes in first so a visible session always has one.
	if err := s.store.Put(ctx, store.SessionSecretPath(id), secret); err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "failed to create session", err)
	}
	if err := s.store.Put(ctx, store.SessionPath(id), sess); err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "failed to create session", err)
	}
	return id, sess, nil
}

// GetSession reads a session record.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var sess model.Session
	err := s.store.Get(ctx, store.SessionPath(sessionID), &sess)
	if err == store.ErrNotFound {
		return nil, apperr.New(apperr.NotFound, "session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to read session", err)
	}
	return &sess, nil
}

// CoinFlipPick records the caller's coin-flip pick. When the second pick
// lands, turn order is resolved in the same transaction so two concurrent
// submissions can never disagree on who moves first.
func (s *SessionService) CoinFlipPick(ctx context.Context, playerID, sessionID string, pick int) error {
	if sessionID == "" || pick < 0 || pick > 9 {
		return apperr.New(apperr.InvalidArgument, "pick must be a digit 0-9")
	}

	now := s.nowMillis()
	_, err := s.store.Transact(ctx, store.SessionPath(sessionID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "session not found")
		}
		var sess model.Session
		if err := json.Unmarshal(current, &sess); err != nil {
			return nil, err
		}
		if sess.Status != model.StatusCoinFlip {
			return nil, apperr.New(apperr.FailedPrecondition, "session is not in the coin-flip phase")
		}
		slot := sess.SlotOf(playerID)
		if slot == "" {
			return nil, apperr.New(apperr.PermissionDenied, "not a player of this session")
		}

		p := pick
		if slot == model.SlotPlayer1 {
			sess.CoinFlip.Player1Pick = &p
		} else {
			sess.CoinFlip.Player2Pick = &p
		}

		cf := sess.CoinFlip
		if cf.Player1Pick != nil && cf.Player2Pick != nil && cf.FirstTurn == nil {
			first := game.ComputeFirstTurn(cf.HouseDigit, *cf.Player1Pick, *cf.Player2Pick)
			sess.CoinFlip.FirstTurn = &first
			sess.Status = model.StatusPlaying
			sess.Turns = model.Turns{CurrentTurn: first, TurnNumber: 1, TurnStartedAt: now}
		}
		return json.Marshal(&sess)
	})
	return err
}

// SubmitGuess evaluates the caller's guess, appends it at the next per-slot
// index and either finishes the session on a win or flips the turn. The
// append and the flip/termination are one transaction, so a double submit
// can never produce two guesses for the same turn.
func (s *SessionService) SubmitGuess(ctx context.Context, playerID, sessionID, guess string) (*model.Guess, error) {
	if !game.ValidGuess(guess, s.cfg.SecretLength) {
		return nil, apperr.Newf(apperr.InvalidArgument, "guess must be %d digits", s.cfg.SecretLength)
	}

	secret, err := s.secret(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.nowMillis()
	var out model.Guess
	_, err = s.store.Transact(ctx, store.SessionPath(sessionID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "session not found")
		}
		var sess model.Session
		if err := json.Unmarshal(current, &sess); err != nil {
			return nil, err
		}
		if sess.Status != model.StatusPlaying {
			return nil, apperr.New(apperr.FailedPrecondition, "session is not active")
		}
		slot := sess.SlotOf(playerID)
		if slot == "" {
			return nil, apperr.New(apperr.PermissionDenied, "not a player of this session")
		}
		if sess.Turns.CurrentTurn != slot {
			return nil, apperr.New(apperr.FailedPrecondition, "not your turn")
		}

		res := game.CheckGuess(secret, guess)
		g := model.Guess{
			Value:   guess,
			Bulls:   res.Bulls,
			Cows:    res.Cows,
			Repeats: res.Repeats,
			Index:   len(sess.Guesses[slot]),
		}
		if sess.AssistedMode {
			for _, st := range game.DigitStatuses(secret, guess) {
				g.DigitStatuses = append(g.DigitStatuses, string(st))
			}
		}
		if sess.Guesses == nil {
			sess.Guesses = make(map[model.PlayerSlot][]model.Guess)
		}
		sess.Guesses[slot] = append(sess.Guesses[slot], g)

		if game.IsWin(res, s.cfg.SecretLength) {
			sess.Status = model.StatusFinished
			sess.Result = &model.Result{
				Winner:           slot,
				Reason:           model.ReasonGuessed,
				WinnerGuessCount: g.Index + 1,
			}
			sess.SecretNumber = secret
		} else {
			sess.Turns = model.Turns{
				CurrentTurn:   slot.Other(),
				TurnNumber:    sess.Turns.TurnNumber + 1,
				TurnStartedAt: now,
			}
		}

		out = g
		return json.Marshal(&sess)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat refreshes the caller's lastSeen timestamp.
func (s *SessionService) Heartbeat(ctx context.Context, playerID, sessionID string) error {
	now := s.nowMillis()
	_, err := s.store.Transact(ctx, store.SessionPath(sessionID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "session not found")
		}
		var sess model.Session
		if err := json.Unmarshal(current, &sess); err != nil {
			return nil, err
		}
		if sess.Status == model.StatusFinished {
			return nil, apperr.New(apperr.FailedPrecondition, "session already finished")
		}
		slot := sess.SlotOf(playerID)
		if slot == "" {
			return nil, apperr.New(apperr.PermissionDenied, "not a player of this session")
		}
		sess.PlayerBySlot(slot).LastSeen = now
		return json.Marshal(&sess)
	})
	return err
}

// ClaimDisconnectWin finishes the session in the caller's favor when the
// opponent's heartbeat is older than the disconnect threshold. A live
// opponent makes the claim abort cleanly; the caller is expected to wait
// and retry rather than treat that as an error.
func (s *SessionService) ClaimDisconnectWin(ctx context.Context, playerID, sessionID string) (bool, error) {
	now := s.nowMillis()
	committed, err := s.store.Transact(ctx, store.SessionPath(sessionID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "session not found")
		}
		var sess model.Session
		if err := json.Unmarshal(current, &sess); err != nil {
			return nil, err
		}
		if sess.Status == model.StatusFinished {
			return nil, apperr.New(apperr.FailedPrecondition, "session already finished")
		}
		slot := sess.SlotOf(playerID)
		if slot == "" {
			return nil, apperr.New(apperr.PermissionDenied, "not a player of this session")
		}

		opponent := sess.PlayerBySlot(slot.Other())
		if now-opponent.LastSeen < s.cfg.DisconnectThreshold.Milliseconds() {
			return nil, store.ErrAbort // opponent still connected
		}

		sess.Status = model.StatusFinished
		sess.Result = &model.Result{Winner: slot, Reason: model.ReasonDisconnect}
		return json.Marshal(&sess)
	})
	if err != nil {
		return false, err
	}
	if committed {
		s.revealSecret(ctx, sessionID)
	}
	return committed, nil
}

// SkipTurn flips the turn without a guess once the current turn has run
// past the timeout. The server checks against timeout minus a grace
// margin so a client acting on its own clock is not rejected by skew.
func (s *SessionService) SkipTurn(ctx context.Context, playerID, sessionID string) error {
	now := s.nowMillis()
	threshold := (s.cfg.TurnTimeout - s.cfg.SkipGrace).Milliseconds()
	_, err := s.store.Transact(ctx, store.SessionPath(sessionID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "session not found")
		}
		var sess model.Session
		if err := json.Unmarshal(current, &sess); err != nil {
			return nil, err
		}
		if sess.Status != model.StatusPlaying {
			return nil, apperr.New(apperr.FailedPrecondition, "session is not active")
		}
		slot := sess.SlotOf(playerID)
		if slot == "" {
			return nil, apperr.New(apperr.PermissionDenied, "not a player of this session")
		}
		if sess.Turns.CurrentTurn != slot {
			return nil, apperr.New(apperr.FailedPrecondition, "not your turn")
		}
		if now-sess.Turns.TurnStartedAt < threshold {
			return nil, apperr.New(apperr.FailedPrecondition, "turn has not timed out yet")
		}

		sess.Turns = model.Turns{
			CurrentTurn:   slot.Other(),
			TurnNumber:    sess.Turns.TurnNumber + 1,
			TurnStartedAt: now,
		}
		return json.Marshal(&sess)
	})
	return err
}

// Forfeit unconditionally finishes the session in the opponent's favor.
func (s *SessionService) Forfeit(ctx context.Context, playerID, sessionID string) error {
	_, err := s.store.Transact(ctx, store.SessionPath(sessionID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "session not found")
		}
		var sess model.Session
		if err := json.Unmarshal(current, &sess); err != nil {
			return nil, err
		}
		if sess.Status == model.StatusFinished {
			return nil, apperr.New(apperr.FailedPrecondition, "session already finished")
		}
		slot := sess.SlotOf(playerID)
		if slot == "" {
			return nil, apperr.New(apperr.PermissionDenied, "not a player of this session")
		}

		sess.Status = model.StatusFinished
		sess.Result = &model.Result{Winner: slot.Other(), Reason: model.ReasonForfeit}
		return json.Marshal(&sess)
	})
	if err != nil {
		return err
	}
	s.revealSecret(ctx, sessionID)
	return nil
}

// secret reads the session's secret, distinguishing a missing session
// from a session whose secret record is unexpectedly absent.
func (s *SessionService) secret(ctx context.Context, sessionID string) (string, error) {
	var secret string
	err := s.store.Get(ctx, store.SessionSecretPath(sessionID), &secret)
	if err == store.ErrNotFound {
		var sess model.Session
		if s.store.Get(ctx, store.SessionPath(sessionID), &sess) == store.ErrNotFound {
			return "", apperr.New(apperr.NotFound, "session not found")
		}
		return "", apperr.New(apperr.Internal, "session secret missing")
	}
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to read secret", err)
	}
	return secret, nil
}

// revealSecret copies the secret into a finished session record for
// post-game display if it is not already there. Best effort: the result
// itself has already committed.
func (s *SessionService) revealSecret(ctx context.Context, sessionID string) {
	var secret string
	if err := s.store.Get(ctx, store.SessionSecretPath(sessionID), &secret); err != nil {
		return
	}
	_, _ = s.store.Transact(ctx, store.SessionPath(sessionID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrAbort
		}
		var sess model.Session
		if err := json.Unmarshal(current, &sess); err != nil {
			return nil, err
		}
		if sess.Status != model.StatusFinished || sess.SecretNumber != "" {
			return nil, store.ErrAbort
		}
		sess.SecretNumber = secret
		return json.Marshal(&sess)
	})
}
