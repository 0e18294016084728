// Package model defines the data models for the number-duel server.
package model

// PlayerSlot identifies one of the two fixed player positions in a session.
type PlayerSlot string

const (
	SlotPlayer1 PlayerSlot = "player1"
	SlotPlayer2 PlayerSlot = "player2"
)

// Other returns the opposing slot.
func (s PlayerSlot) Other() PlayerSlot {
	if s == SlotPlayer1 {
		return SlotPlayer2
	}
	return SlotPlayer1
}

// Valid reports whether s is one of the two defined slots.
func (s PlayerSlot) Valid() bool {
	return s == SlotPlayer1 || s == SlotPlayer2
}

// SessionStatus is the lifecycle state of a session.
// Transitions: coin_flip -> playing -> finished. finished is terminal.
type SessionStatus string

const (
	StatusCoinFlip SessionStatus = "coin_flip"
	StatusPlaying  SessionStatus = "playing"
	StatusFinished SessionStatus = "finished"
)

// ResultReason records how a session ended.
type ResultReason string

const (
	ReasonGuessed    ResultReason = "guessed"
	ReasonDisconnect ResultReason = "disconnect"
	ReasonForfeit    ResultReason = "forfeit"
)

// Player is one occupied slot of a session. LastSeen is a heartbeat
// timestamp in Unix milliseconds.
type Player struct {
	ID       string `json:"id"`
	LastSeen int64  `json:"lastSeen"`
}

// CoinFlip holds the pre-game turn-order protocol state. Picks are nil
// until submitted; FirstTurn is set exactly once when both picks are in.
type CoinFlip struct {
	HouseDigit  int         `json:"houseDigit"`
	Player1Pick *int        `json:"player1Pick,omitempty"`
	Player2Pick *int        `json:"player2Pick,omitempty"`
	FirstTurn   *PlayerSlot `json:"firstTurn,omitempty"`
}

// Turns tracks whose move it is. TurnNumber starts at 1 and increases by
// exactly 1 on every flip; TurnStartedAt resets on every flip.
type Turns struct {
	CurrentTurn   PlayerSlot `json:"currentTurn"`
	TurnNumber    int        `json:"turnNumber"`
	TurnStartedAt int64      `json:"turnStartedAt"`
}

// Guess is one evaluated guess. Guesses are immutable once written and
// index-ordered per slot with no gaps.
type Guess struct {
	Value         string   `json:"value"`
	Bulls         int      `json:"bulls"`
	Cows          int      `json:"cows"`
	Repeats       int      `json:"repeats"`
	Index         int      `json:"index"`
	DigitStatuses []string `json:"digitStatuses,omitempty"`
}

// Result is the terminal outcome of a session. Immutable once set.
type Result struct {
	Winner           PlayerSlot   `json:"winner"`
	Reason           ResultReason `json:"reason"`
	WinnerGuessCount int          `json:"winnerGuessCount,omitempty"`
}

// Session is one match from pairing to terminal result. The secret is
// stored apart from this publicly readable record and only appears in
// SecretNumber once the session is finished.
type Session struct {
	Status             SessionStatus          `json:"status"`
	AssistedMode       bool                   `json:"assistedMode"`
	Player1            *Player                `json:"player1,omitempty"`
	Player2            *Player                `json:"player2,omitempty"`
	CoinFlip           CoinFlip               `json:"coinFlip"`
	Turns              Turns                  `json:"turns"`
	Guesses            map[PlayerSlot][]Guess `json:"guesses,omitempty"`
	Result             *Result                `json:"result,omitempty"`
	SecretNumber       string                 `json:"secretNumber,omitempty"`
	LeagueID           string                 `json:"leagueId,omitempty"`
	LeagueStatsUpdated bool                   `json:"leagueStatsUpdated,omitempty"`
}

// PlayerBySlot returns the player occupying the given slot.
func (s *Session) PlayerBySlot(slot PlayerSlot) *Player {
	if slot == SlotPlayer1 {
		return s.Player1
	}
	return s.Player2
}

// SlotOf returns the slot occupied by the given player id, or "" if the
// player is not a participant.
func (s *Session) SlotOf(playerID string) PlayerSlot {
	if s.Player1 != nil && s.Player1.ID == playerID {
		return SlotPlayer1
	}
	if s.Player2 != nil && s.Player2.ID == playerID {
		return SlotPlayer2
	}
	return ""
}

// MatchmakingEntry is one waiting player in the queue. Entries older than
// the staleness window are ignored by matching and purged opportunistically.
type MatchmakingEntry struct {
	PlayerID     string `json:"playerId"`
	Timestamp    int64  `json:"timestamp"`
	AssistedMode bool   `json:"assistedMode"`
	LeagueID     string `json:"leagueId,omitempty"`
}

// Queue is the whole matchmaking queue, keyed by entry id. It is stored as
// a single record so pairing can claim two entries in one transaction.
type Queue map[string]MatchmakingEntry

// MatchNotification is the one-shot record pushed to a matched opponent's
// notification path.
type MatchNotification struct {
	SessionID string     `json:"sessionId"`
	Slot      PlayerSlot `json:"slot"`
}

// ChallengeStatus is the lifecycle state of a direct challenge.
type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeAccepted ChallengeStatus = "accepted"
	ChallengeDeclined ChallengeStatus = "declined"
	ChallengeExpired  ChallengeStatus = "expired"
)

// Challenge is a direct match invitation between two league members.
type Challenge struct {
	FromID       string          `json:"fromId"`
	ToID         string          `json:"toId"`
	FromName     string          `json:"fromName"`
	LeagueID     string          `json:"leagueId"`
	AssistedMode bool            `json:"assistedMode"`
	Status       ChallengeStatus `json:"status"`
	SessionID    string          `json:"sessionId,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

// Terminal reports whether the challenge has reached a final status.
func (c *Challenge) Terminal() bool {
	return c.Status != ChallengePending
}

// League is a private ranking group joined by code.
type League struct {
	Name         string `json:"name"`
	Code         string `json:"code"`
	CreatedBy    string `json:"createdBy"`
	CreatedAt    int64  `json:"createdAt"`
	AssistedMode bool   `json:"assistedMode"`
	MemberCount  int    `json:"memberCount"`
}

// LeagueMember is the per-(league, player) stats record. Mutated only by
// the stats poster after a session finishes.
type LeagueMember struct {
	DisplayName        string `json:"displayName"`
	JoinedAt           int64  `json:"joinedAt"`
	Wins               int    `json:"wins"`
	Losses             int    `json:"losses"`
	TotalGuessesInWins int    `json:"totalGuessesInWins"`
	LastMatchAt        int64  `json:"lastMatchAt"`
}

// LeagueMatch is one immutable match-history entry.
type LeagueMatch struct {
	WinnerID         string       `json:"winnerId"`
	LoserID          string       `json:"loserId"`
	WinnerName       string       `json:"winnerName"`
	LoserName        string       `json:"loserName"`
	Reason           ResultReason `json:"reason"`
	WinnerGuessCount int          `json:"winnerGuessCount"`
	Timestamp        int64        `json:"timestamp"`
}

// LeagueStanding is a ranked row of a league table.
type LeagueStanding struct {
	PlayerID string `json:"playerId"`
	LeagueMember
	Rank    int     `json:"rank"`
	WinRate float64 `json:"winRate"`
	Score   *int    `json:"score"` // nil while unranked (fewer than 3 matches)
}
