package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numduel/internal/apperr"
	"numduel/internal/config"
	"numduel/internal/model"
	"numduel/internal/store"
)

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		SecretLength:        6,
		TurnTimeout:         30 * time.Second,
		SkipGrace:           2 * time.Second,
		DisconnectThreshold: 30 * time.Second,
		QueueStaleAfter:     60 * time.Second,
		ChallengeStaleAfter: 60 * time.Second,
	}
}

// testClock is a manually advanced clock shared by services under test.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSessionService(st store.Store, clock *testClock) *SessionService {
	s := NewSessionService(st, testGameConfig())
	s.now = clock.Now
	return s
}

// storedSecret reads the secret of a session straight out of the store.
func storedSecret(t *testing.T, st store.Store, sessionID string) string {
	t.Helper()
	var secret string
	require.NoError(t, st.Get(context.Background(), store.SessionSecretPath(sessionID), &secret))
	return secret
}

// startPlaying runs the coin flip so the session enters the playing phase,
// and returns the player id whose turn it is and their opponent.
func startPlaying(t *testing.T, s *SessionService, sessionID string, sess *model.Session) (current, waiting string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CoinFlipPick(ctx, sess.Player1.ID, sessionID, 9))
	require.NoError(t, s.CoinFlipPick(ctx, sess.Player2.ID, sessionID, 0))

	got, err := s.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPlaying, got.Status)

	current = got.PlayerBySlot(got.Turns.CurrentTurn).ID
	waiting = got.PlayerBySlot(got.Turns.CurrentTurn.Other()).ID
	return current, waiting
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSessionService(st, newTestClock())

	id, sess, err := s.CreateSession(ctx, "alice", "bob", true, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.Equal(t, model.StatusCoinFlip, sess.Status)
	assert.True(t, sess.AssistedMode)
	assert.Equal(t, "alice", sess.Player1.ID)
	assert.Equal(t, "bob", sess.Player2.ID)
	assert.Empty(t, sess.SecretNumber, "secret must not appear on a live session")

	secret := storedSecret(t, st, id)
	assert.Len(t, secret, 6)
	assert.NotEqual(t, byte('0'), secret[0])
}

func TestCoinFlipResolvesTurnOrder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSessionService(st, newTestClock())

	id, _, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)

	require.NoError(t, s.CoinFlipPick(ctx, "alice", id, 3))

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCoinFlip, got.Status, "one pick is not enough")
	require.NotNil(t, got.CoinFlip.Player1Pick)
	assert.Equal(t, 3, *got.CoinFlip.Player1Pick)

	require.NoError(t, s.CoinFlipPick(ctx, "bob", id, 7))

	got, err = s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlaying, got.Status)
	require.NotNil(t, got.CoinFlip.FirstTurn)
	assert.Equal(t, *got.CoinFlip.FirstTurn, got.Turns.CurrentTurn)
	assert.Equal(t, 1, got.Turns.TurnNumber)
}

func TestCoinFlipValidation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSessionService(st, newTestClock())

	id, _, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)

	err = s.CoinFlipPick(ctx, "alice", id, 12)
	assert.Equal(t, apperr.InvalidArgument, apperr.CodeOf(err))

	err = s.CoinFlipPick(ctx, "mallory", id, 4)
	assert.Equal(t, apperr.PermissionDenied, apperr.CodeOf(err))

	err = s.CoinFlipPick(ctx, "alice", "no-such-session", 4)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestSubmitGuessWinsSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSessionService(st, newTestClock())

	id, sess, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)
	current, _ := startPlaying(t, s, id, sess)
	secret := storedSecret(t, st, id)

	g, err := s.SubmitGuess(ctx, current, id, secret)
	require.NoError(t, err)
	assert.Equal(t, 6, g.Bulls)
	assert.Equal(t, 0, g.Index)

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, model.ReasonGuessed, got.Result.Reason)
	assert.Equal(t, got.SlotOf(current), got.Result.Winner)
	assert.Equal(t, 1, got.Result.WinnerGuessCount)
	assert.Equal(t, secret, got.SecretNumber, "secret is revealed once finished")
}

func TestSubmitGuessFlipsTurn(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSessionService(st, newTestClock())

	id, sess, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)
	current, waiting := startPlaying(t, s, id, sess)
	secret := storedSecret(t, st, id)

	// A wrong guess that is still well-formed.
	wrong := "123456"
	if wrong == secret {
		wrong = "654321"
	}

	g, err := s.SubmitGuess(ctx, current, id, wrong)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Index)

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlaying, got.Status)
	assert.Equal(t, waiting, got.PlayerBySlot(got.Turns.CurrentTurn).ID)
	assert.Equal(t, 2, got.Turns.TurnNumber)
}

func TestSubmitGuessOutOfTurn(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSessionService(st, newTestClock())

	id, sess, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)
	_, waiting := startPlaying(t, s, id, sess)

	before, err := s.GetSession(ctx, id)
	require.NoError(t, err)

	_, err = s.SubmitGuess(ctx, waiting, id, "123456")
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))

	after, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.Turns, after.Turns, "rejected guess must not mutate the session")
	assert.Empty(t, after.Guesses)
}

func TestSubmitGuessAssistedMode(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSessionService(st, newTestClock())

	id, sess, err := s.CreateSession(ctx, "alice", "bob", true, "")
	require.NoError(t, err)
	current, _ := startPlaying(t, s, id, sess)
	secret := storedSecret(t, st, id)

	g, err := s.SubmitGuess(ctx, current, id, secret)
	require.NoError(t, err)
	assert.Len(t, g.DigitStatuses, 6)
}

func TestClaimDisconnectWin(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	clock := newTestClock()
	s := newTestSessionService(st, clock)

	id, sess, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)
	startPlaying(t, s, id, sess)

	// Opponent is still fresh: the claim aborts without finishing anything.
	claimed, err := s.ClaimDisconnectWin(ctx, "alice", id)
	require.NoError(t, err)
	assert.False(t, claimed)

	// Alice keeps heartbeating while Bob goes silent past the threshold.
	clock.Advance(31 * time.Second)
	require.NoError(t, s.Heartbeat(ctx, "alice", id))

	claimed, err = s.ClaimDisconnectWin(ctx, "alice", id)
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, got.Status)
	assert.Equal(t, model.SlotPlayer1, got.Result.Winner)
	assert.Equal(t, model.ReasonDisconnect, got.Result.Reason)
	assert.NotEmpty(t, got.SecretNumber)

	// The session is terminal now.
	_, err = s.ClaimDisconnectWin(ctx, "bob", id)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
}

func TestHeartbeatBlocksClaim(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	clock := newTestClock()
	s := newTestSessionService(st, clock)

	id, sess, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)
	startPlaying(t, s, id, sess)

	clock.Advance(25 * time.Second)
	require.NoError(t, s.Heartbeat(ctx, "bob", id))
	clock.Advance(25 * time.Second)
	require.NoError(t, s.Heartbeat(ctx, "alice", id))

	claimed, err := s.ClaimDisconnectWin(ctx, "alice", id)
	require.NoError(t, err)
	assert.False(t, claimed, "a heartbeat within the threshold keeps the opponent alive")
}

func TestSkipTurn(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	clock := newTestClock()
	s := newTestSessionService(st, clock)

	id, sess, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)
	current, waiting := startPlaying(t, s, id, sess)

	// Too early.
	err = s.SkipTurn(ctx, current, id)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))

	// Past timeout minus the grace margin.
	clock.Advance(28 * time.Second)
	require.NoError(t, s.SkipTurn(ctx, current, id))

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, waiting, got.PlayerBySlot(got.Turns.CurrentTurn).ID)
	assert.Equal(t, 2, got.Turns.TurnNumber)
	assert.Empty(t, got.Guesses, "a skip records no guess")
}

func TestSkipTurnOnlyCurrentPlayer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	clock := newTestClock()
	s := newTestSessionService(st, clock)

	id, sess, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)
	_, waiting := startPlaying(t, s, id, sess)

	clock.Advance(time.Minute)
	err = s.SkipTurn(ctx, waiting, id)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
}

func TestForfeit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSessionService(st, newTestClock())

	id, sess, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)
	startPlaying(t, s, id, sess)

	require.NoError(t, s.Forfeit(ctx, "alice", id))

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, got.Status)
	assert.Equal(t, model.SlotPlayer2, got.Result.Winner)
	assert.Equal(t, model.ReasonForfeit, got.Result.Reason)
	assert.NotEmpty(t, got.SecretNumber)

	err = s.Forfeit(ctx, "bob", id)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
}

func TestGuessesAfterFinishRejected(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSessionService(st, newTestClock())

	id, sess, err := s.CreateSession(ctx, "alice", "bob", false, "")
	require.NoError(t, err)
	current, _ := startPlaying(t, s, id, sess)
	secret := storedSecret(t, st, id)

	_, err = s.SubmitGuess(ctx, current, id, secret)
	require.NoError(t, err)

	_, err = s.SubmitGuess(ctx, current, id, secret)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
}
