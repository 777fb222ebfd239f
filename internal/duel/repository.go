package duel

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/mlacan/sudoku-duel/internal/obslog"
	"github.com/mlacan/sudoku-duel/internal/sudoku"
	"go.uber.org/zap"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// DB exposes the pool so sibling repositories can share the connection.
func (r *Repository) DB() *sql.DB {
	return r.db
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Create(ctx context.Context, p1, p2 int64, grid, solution sudoku.Grid, d sudoku.Difficulty) (*Match, error) {
	m := newMatch(p1, p2, grid, solution, d)
	gridJSON, err := json.Marshal(m.Grid)
	if err != nil {
		return nil, fmt.Errorf("marshal grid: %w", err)
	}
	solutionJSON, err := json.Marshal(m.Solution)
	if err != nil {
		return nil, fmt.Errorf("marshal solution: %w", err)
	}

	const query = `
		INSERT INTO duels (
			id, player1_id, player2_id, grid, solution, difficulty, status,
			player1_progress, player2_progress, player1_mistakes, player2_mistakes,
			created_at
		)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, 0, 0, 0, 0, $8)`

	if _, err := r.db.ExecContext(ctx, query,
		m.ID, m.Player1ID, m.Player2ID, gridJSON, solutionJSON,
		string(m.Difficulty), string(m.Status), m.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert duel: %w", err)
	}
	return m, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Match, error) {
	const query = `
		SELECT
			id, player1_id, player2_id, grid, solution, difficulty, status,
			player1_progress, player2_progress, player1_mistakes, player2_mistakes,
			winner_id, created_at
		FROM duels
		WHERE id = $1`

	var (
		m            Match
		gridJSON     []byte
		solutionJSON []byte
		difficulty   string
		status       string
		winnerID     sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.Player1ID, &m.Player2ID, &gridJSON, &solutionJSON,
		&difficulty, &status,
		&m.Player1Progress, &m.Player2Progress, &m.Player1Mistakes, &m.Player2Mistakes,
		&winnerID, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select duel: %w", err)
	}
	if err := json.Unmarshal(gridJSON, &m.Grid); err != nil {
		return nil, fmt.Errorf("unmarshal grid: %w", err)
	}
	if err := json.Unmarshal(solutionJSON, &m.Solution); err != nil {
		return nil, fmt.Errorf("unmarshal solution: %w", err)
	}
	m.Difficulty = sudoku.Difficulty(difficulty)
	m.Status = Status(status)
	if winnerID.Valid {
		m.WinnerID = winnerID.Int64
	}
	return &m, nil
}

func (r *Repository) UpdateProgress(ctx context.Context, id string, playerID int64, progress, mistakes int) error {
	var p1, p2 int64
	err := r.db.QueryRowContext(ctx, `SELECT player1_id, player2_id FROM duels WHERE id = $1`, id).Scan(&p1, &p2)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("select duel players: %w", err)
	}

	var query string
	switch playerID {
	case p1:
		query = `UPDATE duels SET player1_progress = $1, player1_mistakes = $2 WHERE id = $3`
	case p2:
		query = `UPDATE duels SET player2_progress = $1, player2_mistakes = $2 WHERE id = $3`
	default:
		obslog.L().Warn("progress_update_unknown_player",
			zap.String("match_id", id), zap.Int64("player_id", playerID))
		return nil
	}
	if _, err := r.db.ExecContext(ctx, query, progress, mistakes, id); err != nil {
		return fmt.Errorf("update duel progress: %w", err)
	}
	return nil
}

func (r *Repository) Complete(ctx context.Context, id string, winnerID int64) error {
	const query = `UPDATE duels SET status = 'finished', winner_id = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, winnerID, id); err != nil {
		return fmt.Errorf("complete duel: %w", err)
	}
	return nil
}
