package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckGuess(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		guess   string
		bulls   int
		cows    int
		repeats int
	}{
		{"exact match", "123456", "123456", 6, 0, 0},
		{"no overlap", "123456", "789078", 0, 0, 0},
		{"all cows", "123456", "234561", 0, 6, 0},
		{"bulls and cows mixed", "123456", "124365", 2, 4, 0},
		{"single bull", "123456", "100000", 1, 0, 0},
		{"duplicate guess digit matched once", "123456", "111111", 1, 0, 0},
		{"all duplicates discovered", "112233", "111111", 2, 0, 0},
		{"undiscovered duplicate flagged", "112233", "100000", 1, 0, 1},
		{"one of each pair found", "112233", "123456", 1, 2, 3},
		{"duplicates fully matched", "112233", "123123", 2, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckGuess(tt.secret, tt.guess)
			assert.Equal(t, tt.bulls, res.Bulls, "bulls")
			assert.Equal(t, tt.cows, res.Cows, "cows")
			assert.Equal(t, tt.repeats, res.Repeats, "repeats")
		})
	}
}

func TestDigitStatuses(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		guess    string
		expected []DigitStatus
	}{
		{
			"all bulls",
			"123456", "123456",
			[]DigitStatus{StatusBull, StatusBull, StatusBull, StatusBull, StatusBull, StatusBull},
		},
		{
			"all misses",
			"123456", "789078",
			[]DigitStatus{StatusMiss, StatusMiss, StatusMiss, StatusMiss, StatusMiss, StatusMiss},
		},
		{
			"surplus guess duplicates are misses",
			"123456", "111111",
			[]DigitStatus{StatusBull, StatusMiss, StatusMiss, StatusMiss, StatusMiss, StatusMiss},
		},
		{
			"bull with undiscovered twin",
			"112233", "100000",
			[]DigitStatus{StatusBullRepeat, StatusMiss, StatusMiss, StatusMiss, StatusMiss, StatusMiss},
		},
		{
			"cow with undiscovered twin",
			"112233", "300000",
			[]DigitStatus{StatusCowRepeat, StatusMiss, StatusMiss, StatusMiss, StatusMiss, StatusMiss},
		},
		{
			"mixed line",
			"123456", "124378",
			[]DigitStatus{StatusBull, StatusBull, StatusCow, StatusCow, StatusMiss, StatusMiss},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statuses := DigitStatuses(tt.secret, tt.guess)
			require.Len(t, statuses, len(tt.expected))
			assert.Equal(t, tt.expected, statuses)
		})
	}
}

func TestDigitStatusesConsistentWithCheckGuess(t *testing.T) {
	secret := "122456"
	guess := "221122"

	res := CheckGuess(secret, guess)
	statuses := DigitStatuses(secret, guess)

	bulls, cows := 0, 0
	for _, s := range statuses {
		switch s {
		case StatusBull, StatusBullRepeat:
			bulls++
		case StatusCow, StatusCowRepeat:
			cows++
		}
	}
	assert.Equal(t, res.Bulls, bulls)
	assert.Equal(t, res.Cows, cows)
}

func TestIsWin(t *testing.T) {
	assert.True(t, IsWin(Result{Bulls: 6}, 6))
	assert.False(t, IsWin(Result{Bulls: 5, Cows: 1}, 6))
	assert.False(t, IsWin(Result{}, 6))
}

func TestValidGuess(t *testing.T) {
	tests := []struct {
		name  string
		guess string
		valid bool
	}{
		{"valid", "123456", true},
		{"valid with zero", "102030", true},
		{"too short", "12345", false},
		{"too long", "1234567", false},
		{"empty", "", false},
		{"letter", "12a456", false},
		{"trailing space", "12345 ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidGuess(tt.guess, SecretLength))
		})
	}
}
