package user

import "github.com/mlacan/sudoku-duel/internal/sudoku"

// DuelWinBonus is the flat experience awarded for winning a duel.
const DuelWinBonus = 100

func baseXP(d sudoku.Difficulty) int {
	switch d {
	case sudoku.Easy:
		return 50
	case sudoku.Hard:
		return 200
	case sudoku.Extreme:
		return 500
	default:
		return 100 // Medium
	}
}

// CalculateXP scores a solved puzzle: difficulty base, a speed multiplier
// and a mistake penalty of 5% per mistake capped at 50%.
func CalculateXP(d sudoku.Difficulty, elapsedSeconds, mistakes int) int {
	xp := float64(baseXP(d))

	minutes := float64(elapsedSeconds) / 60
	switch {
	case minutes < 5:
		xp *= 1.5
	case minutes < 10:
		xp *= 1.2
	case minutes > 30:
		xp *= 0.8
	}

	penalty := mistakes * 5
	if penalty > 50 {
		penalty = 50
	}
	xp -= xp * float64(penalty) / 100
	return int(xp)
}

// Level is derived from total experience, 100 XP per level.
func Level(xp int) int {
	return xp/100 + 1
}

// League maps total experience to a named tier.
func League(xp int) string {
	switch {
	case xp >= 6000:
		return "Diamond"
	case xp >= 3000:
		return "Platinum"
	case xp >= 1500:
		return "Gold"
	case xp >= 500:
		return "Silver"
	default:
		return "Bronze"
	}
}
