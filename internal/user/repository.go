package user

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mlacan/sudoku-duel/internal/obslog"
	"go.uber.org/zap"
)

// Repository reads and updates user rows in Postgres. It shares the
// process-wide *sql.DB with the duel repository.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	const query = `
		SELECT id, username, xp, level, wins, streak, league
		FROM users
		WHERE id = $1`

	var u User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.XP, &u.Level, &u.Wins, &u.Streak, &u.League,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

func (r *Repository) AwardXP(ctx context.Context, id int64, amount int) (*User, error) {
	u, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	newXP := u.XP + amount
	newLevel := Level(newXP)
	newLeague := League(newXP)

	const query = `
		UPDATE users
		SET xp = $1, level = $2, league = $3, wins = wins + 1, streak = streak + 1
		WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, newXP, newLevel, newLeague, id); err != nil {
		return nil, fmt.Errorf("update user xp: %w", err)
	}
	if newLeague != u.League {
		obslog.L().Info("league_promotion",
			zap.Int64("user_id", id),
			zap.String("from", u.League), zap.String("to", newLeague))
	}

	u.XP = newXP
	u.Level = newLevel
	u.League = newLeague
	u.Wins++
	u.Streak++
	return u, nil
}

func (r *Repository) ResetStreak(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET streak = 0 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("reset streak: %w", err)
	}
	return nil
}
