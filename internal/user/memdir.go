package user

import (
	"context"
	"sync"
)

// MemDirectory is an in-memory Directory for development and tests.
type MemDirectory struct {
	mu    sync.RWMutex
	users map[int64]*User
}

func NewMemDirectory(users ...*User) *MemDirectory {
	d := &MemDirectory{users: make(map[int64]*User)}
	for _, u := range users {
		copy := *u
		d.users[u.ID] = &copy
	}
	return d
}

func (d *MemDirectory) Put(u *User) {
	d.mu.Lock()
	copy := *u
	d.users[u.ID] = &copy
	d.mu.Unlock()
}

func (d *MemDirectory) FindByID(ctx context.Context, id int64) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (d *MemDirectory) AwardXP(ctx context.Context, id int64, amount int) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.XP += amount
	u.Level = Level(u.XP)
	u.League = League(u.XP)
	u.Wins++
	u.Streak++
	copy := *u
	return &copy, nil
}

func (d *MemDirectory) ResetStreak(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		u.Streak = 0
	}
	return nil
}
