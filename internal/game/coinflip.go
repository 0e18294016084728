package game

import (
	"math/rand"

	"numduel/internal/model"
)

// ComputeFirstTurn resolves the coin flip: the pick closer to the house
// digit moves first; on equal distance the larger pick wins; on equal
// picks player1 wins. Pure and deterministic so it can run inside a
// retried store transaction.
func ComputeFirstTurn(houseDigit, player1Pick, player2Pick int) model.PlayerSlot {
	dist1 := abs(houseDigit - player1Pick)
	dist2 := abs(houseDigit - player2Pick)

	if dist1 < dist2 {
		return model.SlotPlayer1
	}
	if dist2 < dist1 {
		return model.SlotPlayer2
	}

	if player1Pick > player2Pick {
		return model.SlotPlayer1
	}
	if player2Pick > player1Pick {
		return model.SlotPlayer2
	}

	return model.SlotPlayer1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// GenerateSecret produces an n-digit secret with a non-zero leading digit.
// Digits may repeat. The caller provides the random source; secrets are
// generated before any transaction begins.
func GenerateSecret(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	b[0] = byte('1' + rng.Intn(9))
	for i := 1; i < n; i++ {
		b[i] = byte('0' + rng.Intn(10))
	}
	return string(b)
}

// RandomHouseDigit picks the coin-flip house digit 0-9.
func RandomHouseDigit(rng *rand.Rand) int {
	return rng.Intn(10)
}
