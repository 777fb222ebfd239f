package user

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("user not found")

// User is the profile slice the duel subsystem consumes.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	XP       int    `json:"xp"`
	Level    int    `json:"level"`
	Wins     int    `json:"wins"`
	Streak   int    `json:"streak"`
	League   string `json:"league"`
}

// Directory is the user collaborator surface: profile lookup, experience
// award and streak reset. Account management itself lives elsewhere.
type Directory interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	// AwardXP adds experience, recomputes level and league, and counts the
	// duel as a win extending the streak.
	AwardXP(ctx context.Context, id int64, amount int) (*User, error)
	ResetStreak(ctx context.Context, id int64) error
}
