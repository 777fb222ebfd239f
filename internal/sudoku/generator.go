package sudoku

import (
	"math/rand"
	"sync"
	"time"
)

// Grid is a 9x9 sudoku board. Zero marks an empty cell.
type Grid [9][9]int

// Difficulty selects how many cells are removed from the solution.
type Difficulty string

const (
	Easy    Difficulty = "easy"
	Medium  Difficulty = "medium"
	Hard    Difficulty = "hard"
	Extreme Difficulty = "extreme"
)

// ParseDifficulty normalizes a textual difficulty, defaulting to medium.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(s) {
	case Easy, Medium, Hard, Extreme:
		return Difficulty(s)
	default:
		return Medium
	}
}

// RemovedCells returns the number of cells blanked out for the difficulty.
func RemovedCells(d Difficulty) int {
	switch d {
	case Easy:
		return 30
	case Hard:
		return 50
	case Extreme:
		return 60
	default:
		return 40 // Medium
	}
}

// Generator produces puzzles from its own random source.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator() *Generator {
	return NewGeneratorWithSeed(time.Now().UnixNano())
}

func NewGeneratorWithSeed(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate returns a puzzle grid and the full solution it was carved from.
// The puzzle is the solution with RemovedCells(d) random cells zeroed; no
// uniqueness guarantee is attempted since answers are checked against the
// stored solution.
func (g *Generator) Generate(d Difficulty) (grid, solution Grid) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fill(g.rng, &solution, 0, 0)
	grid = solution

	positions := make([]int, 81)
	for i := range positions {
		positions[i] = i
	}
	g.rng.Shuffle(len(positions), func(i, j int) {
		positions[i], positions[j] = positions[j], positions[i]
	})
	for _, pos := range positions[:RemovedCells(d)] {
		grid[pos/9][pos%9] = 0
	}
	return grid, solution
}

// fill solves the grid from (r,c) onward trying digits in random order.
// Completion from an empty grid always succeeds, so this terminates.
func fill(rng *rand.Rand, g *Grid, r, c int) bool {
	if r == 9 {
		return true
	}
	nr, nc := r, c+1
	if nc == 9 {
		nr, nc = r+1, 0
	}
	digits := [9]int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	rng.Shuffle(9, func(i, j int) { digits[i], digits[j] = digits[j], digits[i] })
	for _, v := range digits {
		if allowed(g, r, c, v) {
			g[r][c] = v
			if fill(rng, g, nr, nc) {
				return true
			}
			g[r][c] = 0
		}
	}
	return false
}

func allowed(g *Grid, r, c, v int) bool {
	for i := 0; i < 9; i++ {
		if g[r][i] == v || g[i][c] == v {
			return false
		}
	}
	br, bc := (r/3)*3, (c/3)*3
	for dr := 0; dr < 3; dr++ {
		for dc := 0; dc < 3; dc++ {
			if g[br+dr][bc+dc] == v {
				return false
			}
		}
	}
	return true
}

// IsComplete reports whether every cell is filled and no row, column or
// 3x3 box contains a duplicate digit.
func IsComplete(g Grid) bool {
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			v := g[r][c]
			if v < 1 || v > 9 {
				return false
			}
			g[r][c] = 0
			ok := allowed(&g, r, c, v)
			g[r][c] = v
			if !ok {
				return false
			}
		}
	}
	return true
}
