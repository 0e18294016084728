package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"numduel/internal/apperr"
	"numduel/internal/config"
	"numduel/internal/model"
	"numduel/internal/store"
)

// MatchResult is a committed pairing as seen by the caller of TryMatch.
// The opponent learns about the session through its notification record.
type MatchResult struct {
	SessionID  string           `json:"sessionId"`
	Slot       model.PlayerSlot `json:"slot"`
	OpponentID string           `json:"opponentId"`
}

// MatchmakingService manages the waiting queue and pairs compatible
// players. The whole queue lives in one record, so a pairing claims both
// entries inside a single transaction and no entry is ever matched twice.
type MatchmakingService struct {
	store    store.Store
	cfg      config.GameConfig
	sessions *SessionService

	now func() time.Time
}

// NewMatchmakingService creates a new MatchmakingService instance.
func NewMatchmakingService(st store.Store, cfg config.GameConfig, sessions *SessionService) *MatchmakingService {
	return &MatchmakingService{store: st, cfg: cfg, sessions: sessions, now: time.Now}
}

// JoinQueue appends a waiting entry for the player and returns its handle.
func (s *MatchmakingService) JoinQueue(ctx context.Context, playerID string, assistedMode bool, leagueID string) (string, error) {
	entryID := uuid.NewString()
	entry := model.MatchmakingEntry{
		PlayerID:     playerID,
		Timestamp:    s.now().UnixMilli(),
		AssistedMode: assistedMode,
		LeagueID:     leagueID,
	}
	_, err := s.store.Transact(ctx, store.QueuePath, func(current []byte) ([]byte, error) {
		q := model.Queue{}
		if current != nil {
			if err := json.Unmarshal(current, &q); err != nil {
				return nil, err
			}
		}
		q[entryID] = entry
		return json.Marshal(q)
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to join queue", err)
	}
	return entryID, nil
}

// LeaveQueue removes the caller's own entry. Removing an entry that is
// already gone succeeds silently.
func (s *MatchmakingService) LeaveQueue(ctx context.Context, playerID, entryID string) error {
	_, err := s.store.Transact(ctx, store.QueuePath, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrAbort
		}
		q := model.Queue{}
		if err := json.Unmarshal(current, &q); err != nil {
			return nil, err
		}
		entry, ok := q[entryID]
		if !ok {
			return nil, store.ErrAbort
		}
		if entry.PlayerID != playerID {
			return nil, apperr.New(apperr.PermissionDenied, "not your queue entry")
		}
		delete(q, entryID)
		if len(q) == 0 {
			return nil, nil
		}
		return json.Marshal(q)
	})
	return err
}

// TryMatch runs one pairing attempt: inside a single transaction over the
// whole queue it verifies the caller's entry is still unclaimed, scans the
// remaining entries oldest first, purges stale ones, and claims the first
// compatible opponent by deleting both entries. On a committed claim it
// creates the session and pushes a one-shot notification to the opponent.
// Returns nil when no opponent is available.
func (s *MatchmakingService) TryMatch(ctx context.Context, playerID, entryID string, assistedMode bool, leagueID string) (*MatchResult, error) {
	now := s.now().UnixMilli()
	staleAfter := s.cfg.QueueStaleAfter.Milliseconds()

	var opponentID string
	committed, err := s.store.Transact(ctx, store.QueuePath, func(current []byte) ([]byte, error) {
		opponentID = "" // the body may be retried
		if current == nil {
			return nil, store.ErrAbort
		}
		q := model.Queue{}
		if err := json.Unmarshal(current, &q); err != nil {
			return nil, err
		}

		// Someone else may have claimed us in a concurrent pairing.
		own, ok := q[entryID]
		if !ok || own.PlayerID != playerID {
			return nil, store.ErrAbort
		}

		// Deterministic oldest-first scan: the body must pick the same
		// opponent on every retry of the same queue state.
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if q[keys[i]].Timestamp != q[keys[j]].Timestamp {
				return q[keys[i]].Timestamp < q[keys[j]].Timestamp
			}
			return keys[i] < keys[j]
		})

		purged := false
		for _, key := range keys {
			entry := q[key]
			if key == entryID || entry.PlayerID == playerID {
				continue
			}
			if now-entry.Timestamp > staleAfter {
				delete(q, key)
				purged = true
				continue
			}
			if entry.AssistedMode != assistedMode {
				continue
			}
			if entry.LeagueID != leagueID {
				continue
			}
			opponentID = entry.PlayerID
			delete(q, key)
			delete(q, entryID)
			break
		}

		if opponentID == "" && !purged {
			return nil, store.ErrAbort
		}
		if len(q) == 0 {
			return nil, nil
		}
		return json.Marshal(q)
	})
	if err != nil {
		return nil, err
	}
	if !committed || opponentID == "" {
		return nil, nil
	}

	sessionID, _, err := s.sessions.CreateSession(ctx, playerID, opponentID, assistedMode, leagueID)
	if err != nil {
		return nil, err
	}

	notif := model.MatchNotification{SessionID: sessionID, Slot: model.SlotPlayer2}
	if err := s.store.Put(ctx, store.NotificationPath(opponentID), notif); err != nil {
		// The opponent can still discover the session by polling.
		log.Warn().Err(err).Str("opponent", opponentID).Msg("failed to push match notification")
	}

	log.Info().
		Str("session", sessionID).
		Str("player", playerID).
		Str("opponent", opponentID).
		Msg("matchmaking pairing committed")

	return &MatchResult{SessionID: sessionID, Slot: model.SlotPlayer1, OpponentID: opponentID}, nil
}

// QueueCounts reports live (non-stale) queue sizes per mode.
func (s *MatchmakingService) QueueCounts(ctx context.Context) (assisted, unassisted int, err error) {
	q := model.Queue{}
	if err := s.store.Get(ctx, store.QueuePath, &q); err != nil {
		if err == store.ErrNotFound {
			return 0, 0, nil
		}
		return 0, 0, apperr.Wrap(apperr.Internal, "failed to read queue", err)
	}
	now := s.now().UnixMilli()
	for _, entry := range q {
		if now-entry.Timestamp > s.cfg.QueueStaleAfter.Milliseconds() {
			continue
		}
		if entry.AssistedMode {
			assisted++
		} else {
			unassisted++
		}
	}
	return assisted, unassisted, nil
}

// ClearNotification removes the player's one-shot match notification.
func (s *MatchmakingService) ClearNotification(ctx context.Context, playerID string) error {
	if err := s.store.Delete(ctx, store.NotificationPath(playerID)); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to clear notification", err)
	}
	return nil
}
