package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/mlacan/sudoku-duel/internal/duel"
	"github.com/mlacan/sudoku-duel/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Inbound event names.
const (
	eventSearchDuel       = "search_duel"
	eventCancelSearch     = "cancel_search"
	eventUpdateProgress   = "update_progress"
	eventDuelCompleted    = "duel_completed"
	eventPlayerEliminated = "player_eliminated"
	eventAbandonDuel      = "abandon_duel"
	eventDuelMessage      = "duel_message"
)

type searchPayload struct {
	Difficulty string `json:"difficulty"`
	UserID     int64  `json:"user_id"`
}

type progressPayload struct {
	DuelID   string `json:"duel_id"`
	Progress int    `json:"progress"`
	Mistakes int    `json:"mistakes"`
}

type duelRefPayload struct {
	DuelID string `json:"duel_id"`
}

type messagePayload struct {
	DuelID   string `json:"duel_id"`
	SenderID int64  `json:"sender_id"`
	Content  string `json:"content"`
}

// Server upgrades HTTP requests to duel websocket sessions and dispatches
// inbound events to the coordinator. Events of one connection are handled
// to completion, in order, on that connection's read loop.
type Server struct {
	coord   *duel.Coordinator
	origins []string
}

func NewServer(coord *duel.Coordinator, allowedOrigins []string) *Server {
	return &Server{coord: coord, origins: allowedOrigins}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	c := newConn(uuid.NewString(), sock)
	obslog.L().Info("ws_connected", zap.String("conn_id", c.id))

	defer func() {
		s.coord.Disconnect(c)
		_ = sock.Close(websocket.StatusNormalClosure, "bye")
		obslog.L().Info("ws_disconnected", zap.String("conn_id", c.id))
	}()

	ctx := r.Context()
	for {
		var env Envelope
		if err := wsjson.Read(ctx, sock, &env); err != nil {
			return
		}
		s.dispatch(ctx, c, &env)
	}
}

func (s *Server) dispatch(ctx context.Context, c *conn, env *Envelope) {
	switch env.Event {
	case eventSearchDuel:
		var p searchPayload
		if !decode(c, env, &p) {
			return
		}
		if p.UserID == 0 || p.Difficulty == "" {
			c.Emit(duel.EventError, map[string]string{"message": "user_id and difficulty are required"})
			return
		}
		s.coord.Search(ctx, c, p.UserID, p.Difficulty)

	case eventCancelSearch:
		var p searchPayload
		if !decode(c, env, &p) {
			return
		}
		s.coord.CancelSearch(p.UserID, p.Difficulty)

	case eventUpdateProgress:
		var p progressPayload
		if !decode(c, env, &p) {
			return
		}
		if p.DuelID == "" {
			c.Emit(duel.EventError, map[string]string{"message": "duel_id is required"})
			return
		}
		s.coord.ReportProgress(ctx, c, p.DuelID, p.Progress, p.Mistakes)

	case eventDuelCompleted:
		var p duelRefPayload
		if !decode(c, env, &p) || !requireDuelID(c, p.DuelID) {
			return
		}
		s.coord.ReportCompletion(ctx, c, p.DuelID)

	case eventPlayerEliminated:
		var p duelRefPayload
		if !decode(c, env, &p) || !requireDuelID(c, p.DuelID) {
			return
		}
		s.coord.ReportElimination(ctx, c, p.DuelID)

	case eventAbandonDuel:
		var p duelRefPayload
		if !decode(c, env, &p) || !requireDuelID(c, p.DuelID) {
			return
		}
		s.coord.ReportAbandon(ctx, c, p.DuelID)

	case eventDuelMessage:
		var p messagePayload
		if !decode(c, env, &p) || !requireDuelID(c, p.DuelID) {
			return
		}
		s.coord.RelayMessage(c, p.DuelID, p.SenderID, p.Content)

	default:
		c.Emit(duel.EventError, map[string]string{"message": "unknown event: " + env.Event})
	}
}

func decode(c *conn, env *Envelope, dst any) bool {
	if len(env.Data) == 0 {
		c.Emit(duel.EventError, map[string]string{"message": "missing payload for " + env.Event})
		return false
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		c.Emit(duel.EventError, map[string]string{"message": "malformed payload for " + env.Event})
		return false
	}
	return true
}

func requireDuelID(c *conn, id string) bool {
	if id == "" {
		c.Emit(duel.EventError, map[string]string{"message": "duel_id is required"})
		return false
	}
	return true
}
