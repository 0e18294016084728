package service

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"numduel/internal/apperr"
	"numduel/internal/config"
	"numduel/internal/model"
	"numduel/internal/store"
)

// codeChars excludes confusable characters (0/O, 1/I/L).
const codeChars = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// LeagueService manages leagues, membership and the exactly-once posting
// of match results into league stats.
type LeagueService struct {
	store store.Store
	cfg   config.LeagueConfig
	score ScoreFunc

	now func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewLeagueService creates a new LeagueService instance.
func NewLeagueService(st store.Store, cfg config.LeagueConfig) *LeagueService {
	return &LeagueService{
		store: st,
		cfg:   cfg,
		score: DefaultScore,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetScoreFunc replaces the ranking formula used by Standings.
func (s *LeagueService) SetScoreFunc(fn ScoreFunc) { s.score = fn }

// Create makes a new league with the caller as its first member and a
// unique join code.
func (s *LeagueService) Create(ctx context.Context, playerID, name, displayName string, assistedMode bool) (string, *model.League, error) {
	name = strings.TrimSpace(name)
	displayName = strings.TrimSpace(displayName)
	if name == "" || len(name) > s.cfg.MaxNameLen {
		return "", nil, apperr.New(apperr.InvalidArgument, "invalid league name")
	}
	if displayName == "" || len(displayName) > s.cfg.MaxDisplayLen {
		return "", nil, apperr.New(apperr.InvalidArgument, "invalid display name")
	}
	if err := s.checkLeagueLimit(ctx, playerID); err != nil {
		return "", nil, err
	}

	leagueID := uuid.NewString()
	code, err := s.claimCode(ctx, leagueID)
	if err != nil {
		return "", nil, err
	}

	now := s.now().UnixMilli()
	league := &model.League{
		Name:         name,
		Code:         code,
		CreatedBy:    playerID,
		CreatedAt:    now,
		AssistedMode: assistedMode,
		MemberCount:  1,
	}
	member := &model.LeagueMember{DisplayName: displayName, JoinedAt: now}

	if err := s.store.Put(ctx, store.LeaguePath(leagueID), league); err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "failed to create league", err)
	}
	if err := s.store.Put(ctx, store.LeagueMemberPath(leagueID, playerID), member); err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "failed to create league member", err)
	}
	if err := s.store.Put(ctx, store.PlayerLeaguePath(playerID, leagueID), true); err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "failed to index league", err)
	}
	return leagueID, league, nil
}

// claimCode generates join codes until one can be claimed in the code
// index, bounding the attempts.
func (s *LeagueService) claimCode(ctx context.Context, leagueID string) (string, error) {
	for attempt := 0; attempt < s.cfg.CodeGenAttempts; attempt++ {
		code := s.generateCode()
		committed, err := s.store.Transact(ctx, store.LeagueCodePath(code), func(current []byte) ([]byte, error) {
			if current != nil {
				return nil, store.ErrAbort // code already taken
			}
			return json.Marshal(leagueID)
		})
		if err != nil {
			return "", apperr.Wrap(apperr.Internal, "failed to claim league code", err)
		}
		if committed {
			return code, nil
		}
	}
	return "", apperr.New(apperr.Internal, "could not generate a unique league code")
}

func (s *LeagueService) generateCode() string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	b := make([]byte, s.cfg.CodeLength)
	for i := range b {
		b[i] = codeChars[s.rng.Intn(len(codeChars))]
	}
	return string(b)
}

func (s *LeagueService) checkLeagueLimit(ctx context.Context, playerID string) error {
	memberships, err := s.store.List(ctx, store.PlayerLeaguePrefix(playerID))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to count leagues", err)
	}
	if len(memberships) >= s.cfg.MaxPerPlayer {
		return apperr.Newf(apperr.ResourceExhausted, "a player may belong to at most %d leagues", s.cfg.MaxPerPlayer)
	}
	return nil
}

// Join adds the caller to the league identified by its code.
func (s *LeagueService) Join(ctx context.Context, playerID, code, displayName string) (string, *model.League, error) {
	displayName = strings.TrimSpace(displayName)
	if code == "" {
		return "", nil, apperr.New(apperr.InvalidArgument, "invalid league code")
	}
	if displayName == "" || len(displayName) > s.cfg.MaxDisplayLen {
		return "", nil, apperr.New(apperr.InvalidArgument, "invalid display name")
	}
	if err := s.checkLeagueLimit(ctx, playerID); err != nil {
		return "", nil, err
	}

	var leagueID string
	err := s.store.Get(ctx, store.LeagueCodePath(strings.ToUpper(code)), &leagueID)
	if err == store.ErrNotFound {
		return "", nil, apperr.New(apperr.NotFound, "invalid league code")
	}
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "failed to look up league code", err)
	}

	var existing model.LeagueMember
	if err := s.store.Get(ctx, store.LeagueMemberPath(leagueID, playerID), &existing); err == nil {
		return "", nil, apperr.New(apperr.FailedPrecondition, "already a member of this league")
	}

	var league model.League
	if err := s.store.Get(ctx, store.LeaguePath(leagueID), &league); err != nil {
		if err == store.ErrNotFound {
			return "", nil, apperr.New(apperr.NotFound, "league not found")
		}
		return "", nil, apperr.Wrap(apperr.Internal, "failed to read league", err)
	}

	member := &model.LeagueMember{DisplayName: displayName, JoinedAt: s.now().UnixMilli()}
	if err := s.store.Put(ctx, store.LeagueMemberPath(leagueID, playerID), member); err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "failed to add league member", err)
	}
	if err := s.store.Put(ctx, store.PlayerLeaguePath(playerID, leagueID), true); err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "failed to index league", err)
	}
	if err := s.adjustMemberCount(ctx, leagueID, +1); err != nil {
		return "", nil, err
	}
	league.MemberCount++
	return leagueID, &league, nil
}

// Leave removes the caller from a league.
func (s *LeagueService) Leave(ctx context.Context, playerID, leagueID string) error {
	if leagueID == "" {
		return apperr.New(apperr.InvalidArgument, "leagueId is required")
	}
	var member model.LeagueMember
	err := s.store.Get(ctx, store.LeagueMemberPath(leagueID, playerID), &member)
	if err == store.ErrNotFound {
		return apperr.New(apperr.NotFound, "not a member of this league")
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to read league member", err)
	}

	if err := s.store.Delete(ctx, store.LeagueMemberPath(leagueID, playerID)); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to remove league member", err)
	}
	if err := s.store.Delete(ctx, store.PlayerLeaguePath(playerID, leagueID)); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to remove league index", err)
	}
	return s.adjustMemberCount(ctx, leagueID, -1)
}

func (s *LeagueService) adjustMemberCount(ctx context.Context, leagueID string, delta int) error {
	_, err := s.store.Transact(ctx, store.LeaguePath(leagueID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrAbort
		}
		var league model.League
		if err := json.Unmarshal(current, &league); err != nil {
			return nil, err
		}
		league.MemberCount += delta
		if league.MemberCount < 0 {
			league.MemberCount = 0
		}
		return json.Marshal(&league)
	})
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to update member count", err)
	}
	return nil
}

// Get reads a league record.
func (s *LeagueService) Get(ctx context.Context, leagueID string) (*model.League, error) {
	var league model.League
	err := s.store.Get(ctx, store.LeaguePath(leagueID), &league)
	if err == store.ErrNotFound {
		return nil, apperr.New(apperr.NotFound, "league not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to read league", err)
	}
	return &league, nil
}

// Standings ranks the league table: ranked members by score descending,
// unranked members after them by win count.
func (s *LeagueService) Standings(ctx context.Context, leagueID string) ([]model.LeagueStanding, error) {
	if _, err := s.Get(ctx, leagueID); err != nil {
		return nil, err
	}
	raw, err := s.store.List(ctx, store.LeagueMemberPrefix(leagueID))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to list members", err)
	}

	now := s.now()
	prefix := store.LeagueMemberPrefix(leagueID)
	standings := make([]model.LeagueStanding, 0, len(raw))
	for path, doc := range raw {
		var member model.LeagueMember
		if err := json.Unmarshal(doc, &member); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to decode member", err)
		}
		st := model.LeagueStanding{PlayerID: path[len(prefix):], LeagueMember: member}
		if total := member.Wins + member.Losses; total > 0 {
			st.WinRate = float64(member.Wins) / float64(total)
		}
		if score, ranked := s.score(member, now); ranked {
			sc := score
			st.Score = &sc
		}
		standings = append(standings, st)
	}

	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		switch {
		case a.Score != nil && b.Score != nil:
			if *a.Score != *b.Score {
				return *a.Score > *b.Score
			}
		case a.Score != nil:
			return true
		case b.Score != nil:
			return false
		default:
			if a.Wins != b.Wins {
				return a.Wins > b.Wins
			}
		}
		return a.PlayerID < b.PlayerID
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}

// MatchHistory lists a league's recorded matches, newest first.
func (s *LeagueService) MatchHistory(ctx context.Context, leagueID string) ([]model.LeagueMatch, error) {
	raw, err := s.store.List(ctx, store.LeagueMatchPrefix(leagueID))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to list match history", err)
	}
	matches := make([]model.LeagueMatch, 0, len(raw))
	for _, doc := range raw {
		var m model.LeagueMatch
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to decode match", err)
		}
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Timestamp > matches[j].Timestamp })
	return matches, nil
}

// PostResult posts a finished league session's outcome into the two
// members' stats and the match history. The session's leagueStatsUpdated
// flag is the sole synchronization point: the transaction that flips it
// from false to true wins the right to apply the stats, so concurrent
// calls from both players apply them exactly once. A call that finds the
// flag already set reports alreadyUpdated instead of failing.
func (s *LeagueService) PostResult(ctx context.Context, playerID, sessionID string) (alreadyUpdated bool, err error) {
	if sessionID == "" {
		return false, apperr.New(apperr.InvalidArgument, "sessionId is required")
	}

	var sess model.Session
	guardErr := s.store.Get(ctx, store.SessionPath(sessionID), &sess)
	if guardErr == store.ErrNotFound {
		return false, apperr.New(apperr.NotFound, "session not found")
	}
	if guardErr != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to read session", guardErr)
	}
	if sess.Status != model.StatusFinished {
		return false, apperr.New(apperr.FailedPrecondition, "session is not finished")
	}
	if sess.LeagueID == "" {
		return false, apperr.New(apperr.FailedPrecondition, "not a league session")
	}
	if sess.Result == nil || !sess.Result.Winner.Valid() {
		return false, apperr.New(apperr.FailedPrecondition, "session has no winner")
	}
	if sess.SlotOf(playerID) == "" {
		return false, apperr.New(apperr.PermissionDenied, "not a player of this session")
	}

	committed, err := s.store.Transact(ctx, store.SessionPath(sessionID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "session not found")
		}
		var cur model.Session
		if err := json.Unmarshal(current, &cur); err != nil {
			return nil, err
		}
		if cur.LeagueStatsUpdated {
			return nil, store.ErrAbort
		}
		cur.LeagueStatsUpdated = true
		return json.Marshal(&cur)
	})
	if err != nil {
		return false, err
	}
	if !committed {
		return true, nil
	}

	winnerSlot := sess.Result.Winner
	winnerID := sess.PlayerBySlot(winnerSlot).ID
	loserID := sess.PlayerBySlot(winnerSlot.Other()).ID
	reason := sess.Result.Reason
	guessCount := sess.Result.WinnerGuessCount
	leagueID := sess.LeagueID
	now := s.now().UnixMilli()

	winnerName := s.displayName(ctx, leagueID, winnerID)
	loserName := s.displayName(ctx, leagueID, loserID)

	_, err = s.store.Transact(ctx, store.LeagueMemberPath(leagueID, winnerID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrAbort // winner left the league
		}
		var m model.LeagueMember
		if err := json.Unmarshal(current, &m); err != nil {
			return nil, err
		}
		m.Wins++
		if reason == model.ReasonGuessed {
			m.TotalGuessesInWins += guessCount
		}
		m.LastMatchAt = now
		return json.Marshal(&m)
	})
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to update winner stats", err)
	}

	_, err = s.store.Transact(ctx, store.LeagueMemberPath(leagueID, loserID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrAbort
		}
		var m model.LeagueMember
		if err := json.Unmarshal(current, &m); err != nil {
			return nil, err
		}
		m.Losses++
		m.LastMatchAt = now
		return json.Marshal(&m)
	})
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to update loser stats", err)
	}

	match := model.LeagueMatch{
		WinnerID:         winnerID,
		LoserID:          loserID,
		WinnerName:       winnerName,
		LoserName:        loserName,
		Reason:           reason,
		WinnerGuessCount: guessCount,
		Timestamp:        now,
	}
	if err := s.store.Put(ctx, store.LeagueMatchPath(leagueID, uuid.NewString()), &match); err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to append match history", err)
	}

	log.Info().
		Str("session", sessionID).
		Str("league", leagueID).
		Str("winner", winnerID).
		Msg("league stats posted")

	return false, nil
}

func (s *LeagueService) displayName(ctx context.Context, leagueID, playerID string) string {
	var m model.LeagueMember
	if err := s.store.Get(ctx, store.LeagueMemberPath(leagueID, playerID), &m); err != nil || m.DisplayName == "" {
		return "?"
	}
	return m.DisplayName
}
