package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mlacan/sudoku-duel/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Envelope is the wire frame: a named event with a JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

const writeTimeout = 5 * time.Second

// conn adapts a websocket connection to the duel.Conn handle. Writes are
// serialized; a failed write is logged and dropped (best-effort relay).
type conn struct {
	id string
	ws *websocket.Conn

	mu sync.Mutex
}

func newConn(id string, ws *websocket.Conn) *conn {
	return &conn{id: id, ws: ws}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Emit(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, outEnvelope{Event: event, Data: payload}); err != nil {
		obslog.L().Warn("ws_write_failed",
			zap.String("conn_id", c.id), zap.String("event", event), zap.Error(err))
	}
}
