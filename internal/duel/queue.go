package duel

import (
	"sync"
	"time"

	"github.com/mlacan/sudoku-duel/internal/sudoku"
)

// Ticket is an ephemeral queue entry for a participant waiting on a real
// opponent at one difficulty. It exists only in process memory.
type Ticket struct {
	UserID     int64
	Username   string
	Conn       Conn
	Difficulty sudoku.Difficulty
	EnqueuedAt time.Time

	// fallback fires the bot match if no real pairing happens inside the
	// configured window. Stopped on pairing, cancel and disconnect.
	fallback *time.Timer
}

func (t *Ticket) stopFallback() {
	if t.fallback != nil {
		t.fallback.Stop()
	}
}

// Queue holds waiting tickets grouped by difficulty, strict FIFO within
// each group. All mutation goes through the mutex; there is no
// cross-difficulty matching.
type Queue struct {
	mu      sync.Mutex
	waiting map[sudoku.Difficulty][]*Ticket
}

func NewQueue() *Queue {
	return &Queue{waiting: make(map[sudoku.Difficulty][]*Ticket)}
}

// Pop removes and returns the oldest ticket for the difficulty.
func (q *Queue) Pop(d sudoku.Difficulty) (*Ticket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.waiting[d]
	if len(list) == 0 {
		return nil, false
	}
	t := list[0]
	q.waiting[d] = list[1:]
	t.stopFallback()
	return t, true
}

// Add appends the ticket to its difficulty's list.
func (q *Queue) Add(t *Ticket) {
	q.mu.Lock()
	q.waiting[t.Difficulty] = append(q.waiting[t.Difficulty], t)
	q.mu.Unlock()
}

// AddWithTimeout enqueues the ticket and arms its fallback timer in one
// step, so the timer can never fire against a ticket that was popped
// before it was armed.
func (q *Queue) AddWithTimeout(t *Ticket, wait time.Duration, expire func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if wait > 0 && expire != nil {
		t.fallback = time.AfterFunc(wait, expire)
	}
	q.waiting[t.Difficulty] = append(q.waiting[t.Difficulty], t)
}

// Cancel removes the user's ticket from the difficulty's list if present.
func (q *Queue) Cancel(userID int64, d sudoku.Difficulty) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.waiting[d]
	for i, t := range list {
		if t.UserID == userID {
			q.waiting[d] = append(list[:i], list[i+1:]...)
			t.stopFallback()
			return true
		}
	}
	return false
}

// Remove deletes the exact ticket if it is still queued. Used by the bot
// fallback timer, which must not fire for a ticket that was already paired.
func (q *Queue) Remove(t *Ticket) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.waiting[t.Difficulty]
	for i, cur := range list {
		if cur == t {
			q.waiting[t.Difficulty] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// DropConn scrubs every difficulty's list of tickets held by the
// connection. Called on transport disconnect.
func (q *Queue) DropConn(connID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for d, list := range q.waiting {
		kept := list[:0]
		for _, t := range list {
			if t.Conn.ID() == connID {
				t.stopFallback()
				continue
			}
			kept = append(kept, t)
		}
		q.waiting[d] = kept
	}
}

// Len reports how many tickets wait at the difficulty.
func (q *Queue) Len(d sudoku.Difficulty) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting[d])
}
