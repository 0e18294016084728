package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"numduel/internal/apperr"
	"numduel/internal/config"
	"numduel/internal/model"
	"numduel/internal/store"
)

// InboxChallenge is a pending challenge as listed in a player's inbox.
type InboxChallenge struct {
	ID string `json:"id"`
	model.Challenge
}

// ChallengeService manages direct match invitations between league
// members.
type ChallengeService struct {
	store    store.Store
	cfg      config.GameConfig
	sessions *SessionService

	now func() time.Time
}

// NewChallengeService creates a new ChallengeService instance.
func NewChallengeService(st store.Store, cfg config.GameConfig, sessions *SessionService) *ChallengeService {
	return &ChallengeService{store: st, cfg: cfg, sessions: sessions, now: time.Now}
}

// Send creates a pending challenge from the caller to another member of
// the same league and an inbox index entry for the recipient.
func (s *ChallengeService) Send(ctx context.Context, fromID, targetID, leagueID string) (string, error) {
	if targetID == "" || leagueID == "" {
		return "", apperr.New(apperr.InvalidArgument, "targetId and leagueId are required")
	}

	var fromMember, toMember model.LeagueMember
	fromErr := s.store.Get(ctx, store.LeagueMemberPath(leagueID, fromID), &fromMember)
	toErr := s.store.Get(ctx, store.LeagueMemberPath(leagueID, targetID), &toMember)
	if fromErr == store.ErrNotFound || toErr == store.ErrNotFound {
		return "", apperr.New(apperr.PermissionDenied, "both players must be league members")
	}
	if fromErr != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to read league member", fromErr)
	}
	if toErr != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to read league member", toErr)
	}

	var league model.League
	if err := s.store.Get(ctx, store.LeaguePath(leagueID), &league); err != nil {
		if err == store.ErrNotFound {
			return "", apperr.New(apperr.NotFound, "league not found")
		}
		return "", apperr.Wrap(apperr.Internal, "failed to read league", err)
	}

	challengeID := uuid.NewString()
	challenge := model.Challenge{
		FromID:       fromID,
		ToID:         targetID,
		FromName:     fromMember.DisplayName,
		LeagueID:     leagueID,
		AssistedMode: league.AssistedMode,
		Status:       model.ChallengePending,
		Timestamp:    s.now().UnixMilli(),
	}
	if err := s.store.Put(ctx, store.ChallengePath(challengeID), &challenge); err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to create challenge", err)
	}
	if err := s.store.Put(ctx, store.InboxPath(targetID, challengeID), true); err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to index challenge", err)
	}
	return challengeID, nil
}

// Accept claims a pending challenge for the recipient, creates the
// session (sender is player1), records the session id on the challenge
// and removes the inbox entry. The pending->accepted transition is a
// transaction, so two racing accepts create exactly one session.
func (s *ChallengeService) Accept(ctx context.Context, playerID, challengeID string) (string, error) {
	if challengeID == "" {
		return "", apperr.New(apperr.InvalidArgument, "challengeId is required")
	}

	var challenge model.Challenge
	_, err := s.store.Transact(ctx, store.ChallengePath(challengeID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "challenge not found")
		}
		if err := json.Unmarshal(current, &challenge); err != nil {
			return nil, err
		}
		if challenge.ToID != playerID {
			return nil, apperr.New(apperr.PermissionDenied, "challenge is not addressed to you")
		}
		if challenge.Status != model.ChallengePending {
			return nil, apperr.New(apperr.FailedPrecondition, "challenge is no longer pending")
		}
		challenge.Status = model.ChallengeAccepted
		return json.Marshal(&challenge)
	})
	if err != nil {
		return "", err
	}

	sessionID, _, err := s.sessions.CreateSession(ctx, challenge.FromID, challenge.ToID, challenge.AssistedMode, challenge.LeagueID)
	if err != nil {
		return "", err
	}

	_, err = s.store.Transact(ctx, store.ChallengePath(challengeID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrAbort
		}
		var c model.Challenge
		if err := json.Unmarshal(current, &c); err != nil {
			return nil, err
		}
		c.SessionID = sessionID
		return json.Marshal(&c)
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to record session on challenge", err)
	}

	if err := s.store.Delete(ctx, store.InboxPath(playerID, challengeID)); err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to clear inbox entry", err)
	}
	return sessionID, nil
}

// Decline marks a pending challenge declined. Declining a challenge that
// no longer exists or is already resolved succeeds silently.
func (s *ChallengeService) Decline(ctx context.Context, playerID, challengeID string) error {
	return s.resolve(ctx, playerID, challengeID, model.ChallengeDeclined)
}

// Cancel lets the sender withdraw a pending challenge. Idempotent like
// Decline.
func (s *ChallengeService) Cancel(ctx context.Context, playerID, challengeID string) error {
	return s.resolve(ctx, playerID, challengeID, model.ChallengeExpired)
}

func (s *ChallengeService) resolve(ctx context.Context, playerID, challengeID string, status model.ChallengeStatus) error {
	if challengeID == "" {
		return apperr.New(apperr.InvalidArgument, "challengeId is required")
	}

	var challenge model.Challenge
	err := s.store.Get(ctx, store.ChallengePath(challengeID), &challenge)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to read challenge", err)
	}

	// The recipient declines, the sender cancels.
	if status == model.ChallengeDeclined && challenge.ToID != playerID {
		return apperr.New(apperr.PermissionDenied, "challenge is not addressed to you")
	}
	if status == model.ChallengeExpired && challenge.FromID != playerID {
		return apperr.New(apperr.PermissionDenied, "challenge is not yours")
	}

	_, err = s.store.Transact(ctx, store.ChallengePath(challengeID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrAbort
		}
		var c model.Challenge
		if err := json.Unmarshal(current, &c); err != nil {
			return nil, err
		}
		if c.Terminal() {
			return nil, store.ErrAbort
		}
		c.Status = status
		return json.Marshal(&c)
	})
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, store.InboxPath(challenge.ToID, challengeID)); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to clear inbox entry", err)
	}
	return nil
}

// Inbox lists the player's pending challenges, newest first. Challenges
// that are stale or already resolved are treated as gone.
func (s *ChallengeService) Inbox(ctx context.Context, playerID string) ([]InboxChallenge, error) {
	entries, err := s.store.List(ctx, store.InboxPrefix(playerID))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to list inbox", err)
	}

	now := s.now().UnixMilli()
	staleAfter := s.cfg.ChallengeStaleAfter.Milliseconds()
	prefix := store.InboxPrefix(playerID)

	out := []InboxChallenge{}
	for path := range entries {
		challengeID := path[len(prefix):]
		var c model.Challenge
		if err := s.store.Get(ctx, store.ChallengePath(challengeID), &c); err != nil {
			continue
		}
		if c.Status != model.ChallengePending || now-c.Timestamp > staleAfter {
			continue
		}
		out = append(out, InboxChallenge{ID: challengeID, Challenge: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}
