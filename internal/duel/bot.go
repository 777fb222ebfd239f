package duel

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/mlacan/sudoku-duel/internal/obslog"
	"go.uber.org/zap"
)

// The bot participant is a fixed, well-known identity used as player-two
// filler when no human is queued. Its connection handle never connects and
// is exempt from disconnect handling.
const (
	BotID     int64 = 999
	BotName         = "sudobot"
	botConnID       = "bot-conn"
)

type botConn struct{}

func (botConn) ID() string       { return botConnID }
func (botConn) Emit(string, any) {}

// BotConn is the synthetic handle shared by every bot participant.
var BotConn Conn = botConn{}

// BotConfig tunes the simulated opponent. Zero values fall back to the
// production defaults.
type BotConfig struct {
	TickInterval  time.Duration
	MinStep       int // progress gain lower bound per tick
	MaxStep       int // progress gain upper bound per tick
	MistakeChance float64
	Seed          int64
}

func (c BotConfig) withDefaults() BotConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.MinStep <= 0 {
		c.MinStep = 5
	}
	if c.MaxStep < c.MinStep {
		c.MaxStep = 19
	}
	if c.MistakeChance == 0 {
		c.MistakeChance = 0.2
	}
	return c
}

// startBot launches the tick loop for a bot session and returns its stop
// handle. The handle is idempotent and is fired by every teardown path.
func (c *Coordinator) startBot(s *session) func() {
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	go c.runBot(s, done)
	return stop
}

func (c *Coordinator) runBot(s *session, done <-chan struct{}) {
	cfg := c.bot
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	progress, mistakes := 0, 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		progress += cfg.MinStep + rng.Intn(cfg.MaxStep-cfg.MinStep+1)
		if progress > 100 {
			progress = 100
		}
		if mistakes < 3 && rng.Float64() < cfg.MistakeChance {
			mistakes++
		}

		// Persistence failures must not stop the simulator.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.store.UpdateProgress(ctx, s.matchID, BotID, progress, mistakes); err != nil {
			obslog.L().Error("bot_progress_persist_error",
				zap.String("match_id", s.matchID), zap.Error(err))
		}
		cancel()

		if mistakes >= 3 {
			c.botEliminated(s)
			return
		}

		s.p1.conn.Emit(EventOpponentProgress, ProgressPayload{Progress: progress, Mistakes: mistakes})
		obslog.L().Debug("bot_progress",
			zap.String("match_id", s.matchID),
			zap.Int("progress", progress), zap.Int("mistakes", mistakes))

		if progress >= 100 {
			// The real participant is expected to finish on their own;
			// the simulator never declares the bot the winner.
			return
		}
	}
}

// botEliminated ends a bot match with the real participant as winner after
// the bot accumulated three mistakes.
func (c *Coordinator) botEliminated(stale *session) {
	s := c.takeSession(stale.matchID)
	if s == nil {
		return
	}
	s.p1.conn.Emit(EventOpponentEliminated, nil)
	c.persistOutcome(s, s.p1, s.p2)
	obslog.L().Info("bot_eliminated",
		zap.String("match_id", s.matchID), zap.Int64("winner_id", s.p1.id))
}
