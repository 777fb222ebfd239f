package duel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mlacan/sudoku-duel/internal/obslog"
	"github.com/mlacan/sudoku-duel/internal/sudoku"
	"go.uber.org/zap"
)

// Store is the durable record of duels. The coordinator treats it as the
// system of record; there is no caching layer in front of it.
type Store interface {
	Create(ctx context.Context, p1, p2 int64, grid, solution sudoku.Grid, d sudoku.Difficulty) (*Match, error)
	// Get returns (nil, nil) when the id is unknown.
	Get(ctx context.Context, id string) (*Match, error)
	// UpdateProgress resolves the participant against the stored record.
	// A playerID that is neither participant is a logged no-op.
	UpdateProgress(ctx context.Context, id string, playerID int64, progress, mistakes int) error
	// Complete marks the match finished. Re-calls overwrite the winner.
	Complete(ctx context.Context, id string, winnerID int64) error
}

// MemStore is an in-memory Store used in development when no database is
// configured, and in tests.
type MemStore struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

func NewMemStore() *MemStore {
	return &MemStore{matches: make(map[string]*Match)}
}

func (s *MemStore) Create(ctx context.Context, p1, p2 int64, grid, solution sudoku.Grid, d sudoku.Difficulty) (*Match, error) {
	m := newMatch(p1, p2, grid, solution, d)
	s.mu.Lock()
	s.matches[m.ID] = m
	s.mu.Unlock()
	copy := *m
	return &copy, nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, nil
	}
	copy := *m
	return &copy, nil
}

func (s *MemStore) UpdateProgress(ctx context.Context, id string, playerID int64, progress, mistakes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil
	}
	switch playerID {
	case m.Player1ID:
		m.Player1Progress, m.Player1Mistakes = progress, mistakes
	case m.Player2ID:
		m.Player2Progress, m.Player2Mistakes = progress, mistakes
	default:
		obslog.L().Warn("progress_update_unknown_player",
			zap.String("match_id", id), zap.Int64("player_id", playerID))
	}
	return nil
}

func (s *MemStore) Complete(ctx context.Context, id string, winnerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.matches[id]; ok {
		m.Status = StatusFinished
		m.WinnerID = winnerID
	}
	return nil
}

func newMatch(p1, p2 int64, grid, solution sudoku.Grid, d sudoku.Difficulty) *Match {
	return &Match{
		ID:         uuid.NewString(),
		Player1ID:  p1,
		Player2ID:  p2,
		Grid:       grid,
		Solution:   solution,
		Difficulty: d,
		Status:     StatusActive,
		CreatedAt:  time.Now(),
	}
}
