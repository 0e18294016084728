// Package game implements the pure game rules: guess evaluation,
// per-digit hints, turn-order resolution and secret generation.
//
// Everything here is deterministic in its inputs (randomness is always
// passed in), because these functions run inside optimistically retried
// store transactions and must produce the same output on every retry.
package game

// SecretLength is the number of digits in an online secret.
const SecretLength = 6

// Result is the evaluation of one guess against the secret.
type Result struct {
	Bulls   int `json:"bulls"`
	Cows    int `json:"cows"`
	Repeats int `json:"repeats"`
}

// DigitStatus classifies a single guess position for assisted mode.
type DigitStatus string

const (
	StatusBull       DigitStatus = "bull"
	StatusCow        DigitStatus = "cow"
	StatusMiss       DigitStatus = "miss"
	StatusBullRepeat DigitStatus = "bull-repeat"
	StatusCowRepeat  DigitStatus = "cow-repeat"
)

// CheckGuess evaluates guess against secret. Both must have equal length.
//
// Bulls are positional matches. Cows are counted by greedily matching each
// remaining guess digit against remaining secret positions left to right,
// consuming each secret position at most once. A bull or cow position also
// counts as a repeat when the secret holds more occurrences of that digit
// than the matching has consumed, signalling an undiscovered duplicate.
func CheckGuess(secret, guess string) Result {
	n := len(secret)
	secretUsed := make([]bool, n)
	guessUsed := make([]bool, n)
	cowMatch := make([]int, n)
	for i := range cowMatch {
		cowMatch[i] = -1
	}

	var res Result

	for i := 0; i < n; i++ {
		if guess[i] == secret[i] {
			res.Bulls++
			secretUsed[i] = true
			guessUsed[i] = true
		}
	}

	for i := 0; i < n; i++ {
		if guessUsed[i] {
			continue
		}
		for j := 0; j < n; j++ {
			if secretUsed[j] {
				continue
			}
			if guess[i] == secret[j] {
				res.Cows++
				secretUsed[j] = true
				cowMatch[i] = j
				break
			}
		}
	}

	for i := 0; i < n; i++ {
		isBull := guess[i] == secret[i]
		if !isBull && cowMatch[i] < 0 {
			continue
		}
		if hasUnconsumed(secret, secretUsed, guess[i]) {
			res.Repeats++
		}
	}

	return res
}

// DigitStatuses classifies every guess position using the same consumption
// bookkeeping as CheckGuess. Used only for assisted-mode sessions.
func DigitStatuses(secret, guess string) []DigitStatus {
	n := len(secret)
	statuses := make([]DigitStatus, n)
	secretUsed := make([]bool, n)
	guessUsed := make([]bool, n)

	for i := range statuses {
		statuses[i] = StatusMiss
	}

	for i := 0; i < n; i++ {
		if guess[i] == secret[i] {
			statuses[i] = StatusBull
			secretUsed[i] = true
			guessUsed[i] = true
		}
	}

	for i := 0; i < n; i++ {
		if guessUsed[i] {
			continue
		}
		for j := 0; j < n; j++ {
			if secretUsed[j] {
				continue
			}
			if guess[i] == secret[j] {
				statuses[i] = StatusCow
				secretUsed[j] = true
				break
			}
		}
	}

	for i := 0; i < n; i++ {
		if statuses[i] != StatusBull && statuses[i] != StatusCow {
			continue
		}
		if hasUnconsumed(secret, secretUsed, guess[i]) {
			if statuses[i] == StatusBull {
				statuses[i] = StatusBullRepeat
			} else {
				statuses[i] = StatusCowRepeat
			}
		}
	}

	return statuses
}

// hasUnconsumed reports whether the secret still holds occurrences of digit
// that the matching has not consumed.
func hasUnconsumed(secret string, secretUsed []bool, digit byte) bool {
	total, matched := 0, 0
	for j := 0; j < len(secret); j++ {
		if secret[j] == digit {
			total++
			if secretUsed[j] {
				matched++
			}
		}
	}
	return matched < total
}

// IsWin reports whether the evaluation is a winning guess for the given
// secret length.
func IsWin(res Result, length int) bool {
	return res.Bulls == length
}

// ValidGuess reports whether s is a well-formed guess of the given length.
func ValidGuess(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
