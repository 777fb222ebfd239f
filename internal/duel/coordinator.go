package duel

import (
	"context"
	"sync"
	"time"

	"github.com/mlacan/sudoku-duel/internal/msgcat"
	"github.com/mlacan/sudoku-duel/internal/obslog"
	"github.com/mlacan/sudoku-duel/internal/sudoku"
	"github.com/mlacan/sudoku-duel/internal/user"
	"go.uber.org/zap"
)

type participant struct {
	id   int64
	name string
	conn Conn
}

// session binds an active match to both participants' connections. Role
// resolution is an explicit lookup keyed by connection ID. The session
// mutex serializes persistence per match id.
type session struct {
	matchID string
	p1, p2  participant
	roles   map[string]int // conn ID -> 1 or 2

	mu      sync.Mutex
	stopBot func()
}

func (s *session) byRole(role int) (self, other participant) {
	if role == 1 {
		return s.p1, s.p2
	}
	return s.p2, s.p1
}

// CompletionVerifier is the server-side verification hook for completion
// claims. Nil means claims are trusted as reported.
type CompletionVerifier func(ctx context.Context, m *Match, claimantID int64) error

// Options tunes a Coordinator.
type Options struct {
	// BotFallbackWait is how long an unmatched searcher waits before the
	// bot match starts. Zero starts it immediately.
	BotFallbackWait time.Duration
	// BotReplyDelay spaces the bot's canned chat replies.
	BotReplyDelay time.Duration
	Bot           BotConfig
	// Verifier, when set, can reject a completion claim before it is
	// persisted.
	Verifier CompletionVerifier
}

// Coordinator owns the matchmaking queue and the active session map and
// drives every duel from search to terminal state. One instance per
// process, constructed in main and passed by handle.
type Coordinator struct {
	store   Store
	users   user.Directory
	gen     *sudoku.Generator
	replies *msgcat.Catalog

	queue *Queue

	mu       sync.RWMutex
	sessions map[string]*session

	fallbackWait time.Duration
	replyDelay   time.Duration
	bot          BotConfig
	verifier     CompletionVerifier
}

func NewCoordinator(store Store, users user.Directory, gen *sudoku.Generator, replies *msgcat.Catalog, opts Options) *Coordinator {
	if opts.BotReplyDelay <= 0 {
		opts.BotReplyDelay = time.Second
	}
	return &Coordinator{
		store:        store,
		users:        users,
		gen:          gen,
		replies:      replies,
		queue:        NewQueue(),
		sessions:     make(map[string]*session),
		fallbackWait: opts.BotFallbackWait,
		replyDelay:   opts.BotReplyDelay,
		bot:          opts.Bot.withDefaults(),
		verifier:     opts.Verifier,
	}
}

// Queue exposes the waiting queue, mainly for transport-level cleanup.
func (c *Coordinator) Queue() *Queue { return c.queue }

// Search pairs the requester with the oldest waiting ticket at the
// difficulty, or sets up a bot match when nobody is waiting. With a
// positive fallback window the requester is enqueued first and the bot
// match only starts if no real pairing happens inside the window.
func (c *Coordinator) Search(ctx context.Context, conn Conn, userID int64, difficulty string) {
	d := sudoku.ParseDifficulty(difficulty)

	u, err := c.users.FindByID(ctx, userID)
	if err != nil {
		obslog.L().Warn("duel_search_user_lookup_failed",
			zap.Int64("user_id", userID), zap.Error(err))
		conn.Emit(EventError, map[string]string{"message": "failed to search for opponent"})
		return
	}
	obslog.L().Info("duel_search",
		zap.Int64("user_id", userID), zap.String("difficulty", string(d)))

	if ticket, ok := c.queue.Pop(d); ok {
		c.startRealMatch(ctx, ticket, conn, u)
		return
	}

	if c.fallbackWait <= 0 {
		c.startBotMatch(ctx, conn, u, d)
		return
	}

	t := &Ticket{
		UserID:     userID,
		Username:   u.Username,
		Conn:       conn,
		Difficulty: d,
		EnqueuedAt: time.Now(),
	}
	c.queue.AddWithTimeout(t, c.fallbackWait, func() {
		if !c.queue.Remove(t) {
			return // already paired or cancelled
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.startBotMatch(ctx, conn, u, d)
	})
}

// CancelSearch removes the user's waiting ticket, if any. It has no effect
// once a match exists.
func (c *Coordinator) CancelSearch(userID int64, difficulty string) {
	d := sudoku.ParseDifficulty(difficulty)
	if c.queue.Cancel(userID, d) {
		obslog.L().Info("duel_search_cancelled",
			zap.Int64("user_id", userID), zap.String("difficulty", string(d)))
	}
}

func (c *Coordinator) startRealMatch(ctx context.Context, ticket *Ticket, conn Conn, requester *user.User) {
	grid, solution := c.gen.Generate(ticket.Difficulty)
	m, err := c.store.Create(ctx, ticket.UserID, requester.ID, grid, solution, ticket.Difficulty)
	if err != nil {
		obslog.L().Error("duel_create_failed", zap.Error(err))
		conn.Emit(EventError, map[string]string{"message": "failed to search for opponent"})
		ticket.Conn.Emit(EventError, map[string]string{"message": "failed to search for opponent"})
		return
	}

	s := &session{
		matchID: m.ID,
		p1:      participant{id: ticket.UserID, name: ticket.Username, conn: ticket.Conn},
		p2:      participant{id: requester.ID, name: requester.Username, conn: conn},
	}
	s.roles = map[string]int{ticket.Conn.ID(): 1, conn.ID(): 2}
	c.putSession(s)

	payload := foundPayload(m, ticket.Username, requester.Username)
	ticket.Conn.Emit(EventDuelFound, payload)
	conn.Emit(EventDuelFound, payload)

	obslog.L().Info("duel_created",
		zap.String("match_id", m.ID),
		zap.Int64("player1_id", s.p1.id), zap.Int64("player2_id", s.p2.id),
		zap.String("difficulty", string(m.Difficulty)))
}

func (c *Coordinator) startBotMatch(ctx context.Context, conn Conn, requester *user.User, d sudoku.Difficulty) {
	grid, solution := c.gen.Generate(d)
	m, err := c.store.Create(ctx, requester.ID, BotID, grid, solution, d)
	if err != nil {
		obslog.L().Error("duel_create_failed", zap.Error(err))
		conn.Emit(EventError, map[string]string{"message": "failed to search for opponent"})
		return
	}

	s := &session{
		matchID: m.ID,
		p1:      participant{id: requester.ID, name: requester.Username, conn: conn},
		p2:      participant{id: BotID, name: BotName, conn: BotConn},
	}
	s.roles = map[string]int{conn.ID(): 1, BotConn.ID(): 2}
	s.stopBot = c.startBot(s)
	c.putSession(s)

	conn.Emit(EventDuelFound, foundPayload(m, requester.Username, BotName))

	obslog.L().Info("bot_duel_created",
		zap.String("match_id", m.ID),
		zap.Int64("player_id", requester.ID), zap.String("difficulty", string(d)))
}

// ReportProgress persists one side's self-reported progress and relays it
// to the other side. Unknown matches and non-participants are no-ops.
func (c *Coordinator) ReportProgress(ctx context.Context, conn Conn, matchID string, progress, mistakes int) {
	s, role := c.resolve(conn, matchID, "update_progress")
	if s == nil {
		return
	}
	self, other := s.byRole(role)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.store.UpdateProgress(ctx, matchID, self.id, progress, mistakes); err != nil {
		// In-memory session state stays authoritative for relay; a crash
		// before the next successful write can lose this value.
		obslog.L().Error("progress_persist_error",
			zap.String("match_id", matchID), zap.Error(err))
	}
	if other.id != BotID {
		other.conn.Emit(EventOpponentProgress, ProgressPayload{Progress: progress, Mistakes: mistakes})
	}
}

// ReportCompletion ends the match with the caller as winner. First caller
// wins; the claim is trusted unless a verifier is installed.
func (c *Coordinator) ReportCompletion(ctx context.Context, conn Conn, matchID string) {
	s, role := c.resolve(conn, matchID, "duel_completed")
	if s == nil {
		return
	}
	self, _ := s.byRole(role)

	if c.verifier != nil {
		m, err := c.store.Get(ctx, matchID)
		if err == nil && m != nil {
			if verr := c.verifier(ctx, m, self.id); verr != nil {
				obslog.L().Warn("completion_claim_rejected",
					zap.String("match_id", matchID), zap.Int64("claimant_id", self.id), zap.Error(verr))
				conn.Emit(EventError, map[string]string{"message": "completion claim rejected"})
				return
			}
		}
	}

	s = c.takeSession(matchID)
	if s == nil {
		return
	}
	winner, loser := s.byRole(role)
	if loser.id != BotID {
		loser.conn.Emit(EventDuelFinished, FinishedPayload{WinnerID: roleName(role)})
	}
	c.persistOutcome(s, winner, loser)
	obslog.L().Info("duel_completed",
		zap.String("match_id", matchID), zap.Int64("winner_id", winner.id))
}

// ReportElimination ends the match with the caller as loser after three
// mistakes. The condition is client-reported, not server-verified.
func (c *Coordinator) ReportElimination(ctx context.Context, conn Conn, matchID string) {
	c.finishAgainstCaller(conn, matchID, "player_eliminated", EventOpponentEliminated, nil)
}

// ReportAbandon ends the match with the caller as loser by voluntary exit.
func (c *Coordinator) ReportAbandon(ctx context.Context, conn Conn, matchID string) {
	c.finishAgainstCaller(conn, matchID, "abandon_duel", EventOpponentDisconnected, nil)
}

func (c *Coordinator) finishAgainstCaller(conn Conn, matchID, op, otherEvent string, payload any) {
	s, role := c.resolve(conn, matchID, op)
	if s == nil {
		return
	}
	s = c.takeSession(matchID)
	if s == nil {
		return
	}
	loser, winner := s.byRole(role)
	if winner.id != BotID {
		winner.conn.Emit(otherEvent, payload)
	}
	c.persistOutcome(s, winner, loser)
	obslog.L().Info("duel_forfeited",
		zap.String("match_id", matchID), zap.String("op", op),
		zap.Int64("winner_id", winner.id), zap.Int64("loser_id", loser.id))
}

// RelayMessage forwards an in-match chat line to the other side, or
// schedules a canned bot reply when the opponent is the bot.
func (c *Coordinator) RelayMessage(conn Conn, matchID string, senderID int64, content string) {
	s, role := c.resolve(conn, matchID, "duel_message")
	if s == nil {
		return
	}
	_, other := s.byRole(role)

	if other.id != BotID {
		other.conn.Emit(EventDuelMessage, MessagePayload{SenderID: senderID, Content: content})
		return
	}
	time.AfterFunc(c.replyDelay, func() {
		if c.getSession(matchID) == nil {
			return
		}
		conn.Emit(EventDuelMessage, MessagePayload{SenderID: BotID, Content: c.replies.Random()})
	})
}

// Disconnect handles a transport-level drop: the handle is scrubbed from
// every waiting list, and every session it participates in ends with the
// other side as winner.
func (c *Coordinator) Disconnect(conn Conn) {
	connID := conn.ID()
	c.queue.DropConn(connID)

	c.mu.RLock()
	var affected []string
	for id, s := range c.sessions {
		if _, ok := s.roles[connID]; ok {
			affected = append(affected, id)
		}
	}
	c.mu.RUnlock()

	for _, matchID := range affected {
		s := c.takeSession(matchID)
		if s == nil {
			continue
		}
		role := s.roles[connID]
		loser, winner := s.byRole(role)
		if winner.id != BotID {
			winner.conn.Emit(EventOpponentDisconnected, nil)
		}
		c.persistOutcome(s, winner, loser)
		obslog.L().Info("duel_ended_by_disconnect",
			zap.String("match_id", matchID),
			zap.Int64("winner_id", winner.id), zap.Int64("loser_id", loser.id))
	}
}

// persistOutcome records the terminal state and settles experience and
// streaks. Collaborator failures are logged, never fatal to teardown.
func (c *Coordinator) persistOutcome(s *session, winner, loser participant) {
	if s.stopBot != nil {
		s.stopBot()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.mu.Lock()
	err := c.store.Complete(ctx, s.matchID, winner.id)
	s.mu.Unlock()
	if err != nil {
		obslog.L().Error("duel_complete_persist_error",
			zap.String("match_id", s.matchID), zap.Error(err))
	}

	if winner.id != BotID {
		if _, err := c.users.AwardXP(ctx, winner.id, user.DuelWinBonus); err != nil {
			obslog.L().Error("xp_award_error",
				zap.String("match_id", s.matchID), zap.Int64("user_id", winner.id), zap.Error(err))
		}
	}
	if loser.id != BotID {
		if err := c.users.ResetStreak(ctx, loser.id); err != nil {
			obslog.L().Error("streak_reset_error",
				zap.String("match_id", s.matchID), zap.Int64("user_id", loser.id), zap.Error(err))
		}
	}
}

// resolve looks up the session and the caller's role. A missing session or
// a non-participant handle yields (nil, 0) and is logged, not surfaced.
func (c *Coordinator) resolve(conn Conn, matchID, op string) (*session, int) {
	s := c.getSession(matchID)
	if s == nil {
		obslog.L().Debug("op_on_unknown_match",
			zap.String("op", op), zap.String("match_id", matchID))
		return nil, 0
	}
	role, ok := s.roles[conn.ID()]
	if !ok {
		obslog.L().Warn("op_from_non_participant",
			zap.String("op", op), zap.String("match_id", matchID), zap.String("conn_id", conn.ID()))
		return nil, 0
	}
	return s, role
}

func (c *Coordinator) putSession(s *session) {
	c.mu.Lock()
	c.sessions[s.matchID] = s
	c.mu.Unlock()
}

func (c *Coordinator) getSession(matchID string) *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[matchID]
}

// takeSession removes and returns the session; only the first terminal
// path gets a non-nil result, which keeps teardown idempotent.
func (c *Coordinator) takeSession(matchID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessions[matchID]
	if s != nil {
		delete(c.sessions, matchID)
	}
	return s
}

// ActiveSession reports whether the match still has a live session.
func (c *Coordinator) ActiveSession(matchID string) bool {
	return c.getSession(matchID) != nil
}

func roleName(role int) string {
	if role == 1 {
		return "player1"
	}
	return "player2"
}
