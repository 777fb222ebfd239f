package duel

import (
	"time"

	"github.com/mlacan/sudoku-duel/internal/sudoku"
)

// Status is the lifecycle of a match record.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Match is one duel instance. Grid and Solution are immutable once created.
type Match struct {
	ID         string            `json:"id"`
	Player1ID  int64             `json:"player1_id"`
	Player2ID  int64             `json:"player2_id"`
	Grid       sudoku.Grid       `json:"grid"`
	Solution   sudoku.Grid       `json:"solution"`
	Difficulty sudoku.Difficulty `json:"difficulty"`
	Status     Status            `json:"status"`

	Player1Progress int `json:"player1_progress"`
	Player2Progress int `json:"player2_progress"`
	Player1Mistakes int `json:"player1_mistakes"`
	Player2Mistakes int `json:"player2_mistakes"`

	// WinnerID is zero until the match finishes.
	WinnerID  int64     `json:"winner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Conn is a participant's connection handle: a named-event sink keyed by a
// stable identifier. The websocket layer and the bot's synthetic handle
// both implement it, as do test fakes.
type Conn interface {
	ID() string
	Emit(event string, payload any)
}

// Outbound event names.
const (
	EventDuelFound            = "duel_found"
	EventOpponentProgress     = "opponent_progress"
	EventDuelFinished         = "duel_finished"
	EventOpponentEliminated   = "opponent_eliminated"
	EventOpponentDisconnected = "opponent_disconnected"
	EventDuelMessage          = "duel_message"
	EventError                = "error"
)

// FoundPayload is sent to both sides when a match is created.
type FoundPayload struct {
	ID          string            `json:"id"`
	Player1ID   int64             `json:"player1_id"`
	Player2ID   int64             `json:"player2_id"`
	Player1Name string            `json:"player1_name"`
	Player2Name string            `json:"player2_name"`
	Grid        sudoku.Grid       `json:"grid"`
	Solution    sudoku.Grid       `json:"solution"`
	Difficulty  sudoku.Difficulty `json:"difficulty"`
	Status      Status            `json:"status"`

	Player1Progress int `json:"player1_progress"`
	Player2Progress int `json:"player2_progress"`
	Player1Mistakes int `json:"player1_mistakes"`
	Player2Mistakes int `json:"player2_mistakes"`

	CreatedAt time.Time `json:"created_at"`
}

// ProgressPayload carries one side's self-reported progress to the other.
type ProgressPayload struct {
	Progress int `json:"progress"`
	Mistakes int `json:"mistakes"`
}

// FinishedPayload names the winner slot when a duel completes.
type FinishedPayload struct {
	WinnerID string `json:"winner_id"` // "player1" or "player2"
}

// MessagePayload is an in-match chat line.
type MessagePayload struct {
	SenderID int64  `json:"sender_id"`
	Content  string `json:"content"`
}

func foundPayload(m *Match, p1Name, p2Name string) FoundPayload {
	return FoundPayload{
		ID:              m.ID,
		Player1ID:       m.Player1ID,
		Player2ID:       m.Player2ID,
		Player1Name:     p1Name,
		Player2Name:     p2Name,
		Grid:            m.Grid,
		Solution:        m.Solution,
		Difficulty:      m.Difficulty,
		Status:          m.Status,
		Player1Progress: m.Player1Progress,
		Player2Progress: m.Player2Progress,
		Player1Mistakes: m.Player1Mistakes,
		Player2Mistakes: m.Player2Mistakes,
		CreatedAt:       m.CreatedAt,
	}
}
