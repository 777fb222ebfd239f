package duel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mlacan/sudoku-duel/internal/msgcat"
	"github.com/mlacan/sudoku-duel/internal/sudoku"
	"github.com/mlacan/sudoku-duel/internal/user"
)

type emitted struct {
	event   string
	payload any
}

// fakeConn records emitted events for assertions.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []emitted
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Emit(event string, payload any) {
	f.mu.Lock()
	f.events = append(f.events, emitted{event: event, payload: payload})
	f.mu.Unlock()
}

func (f *fakeConn) all() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.events...)
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// last returns the most recent event, failing the test when none exists.
func (f *fakeConn) last(t *testing.T) emitted {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		t.Fatalf("conn %s: no events emitted", f.id)
	}
	return f.events[len(f.events)-1]
}

// waitFor polls until the predicate holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}

func newTestCoordinator(t *testing.T, opts Options) (*Coordinator, *MemStore, *user.MemDirectory) {
	t.Helper()
	store := NewMemStore()
	users := user.NewMemDirectory(
		&user.User{ID: 1, Username: "alice", Level: 1, League: "Bronze"},
		&user.User{ID: 2, Username: "bob", Level: 1, League: "Bronze"},
	)
	replies, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	if opts.Bot.TickInterval == 0 {
		opts.Bot.TickInterval = time.Hour // keep the simulator quiet unless a test wants it
	}
	gen := sudoku.NewGeneratorWithSeed(1)
	return NewCoordinator(store, users, gen, replies, opts), store, users
}

// pair puts alice and bob into one match and returns their connections and
// the match id taken from the duel_found payloads.
func pair(t *testing.T, c *Coordinator) (alice, bob *fakeConn, matchID string) {
	t.Helper()
	ctx := context.Background()
	alice = newFakeConn("conn-alice")
	bob = newFakeConn("conn-bob")

	c.Search(ctx, alice, 1, "medium")
	if alice.count() != 0 {
		t.Fatalf("alice received %d events while queued, want 0", alice.count())
	}
	c.Search(ctx, bob, 2, "medium")

	got := alice.last(t)
	if got.event != EventDuelFound {
		t.Fatalf("alice last event = %q, want %q", got.event, EventDuelFound)
	}
	found, ok := got.payload.(FoundPayload)
	if !ok {
		t.Fatalf("duel_found payload type %T", got.payload)
	}
	if bobGot := bob.last(t); bobGot.event != EventDuelFound {
		t.Fatalf("bob last event = %q, want %q", bobGot.event, EventDuelFound)
	}
	return alice, bob, found.ID
}

func TestSearchPairsOldestWaiting(t *testing.T) {
	c, store, _ := newTestCoordinator(t, Options{BotFallbackWait: 50 * time.Millisecond})
	alice, bob, matchID := pair(t, c)

	found := alice.last(t).payload.(FoundPayload)
	if found.Player1ID != 1 || found.Player2ID != 2 {
		t.Fatalf("slot assignment: player1=%d player2=%d, want 1,2", found.Player1ID, found.Player2ID)
	}
	if found.Player1Name != "alice" || found.Player2Name != "bob" {
		t.Fatalf("names: %q vs %q", found.Player1Name, found.Player2Name)
	}
	if bobFound := bob.last(t).payload.(FoundPayload); bobFound.ID != found.ID {
		t.Fatalf("sides saw different matches: %q vs %q", found.ID, bobFound.ID)
	}

	if c.Queue().Len(sudoku.Medium) != 0 {
		t.Fatalf("queue not drained after pairing")
	}
	if !c.ActiveSession(matchID) {
		t.Fatalf("no active session for %s", matchID)
	}
	m, err := store.Get(context.Background(), matchID)
	if err != nil || m == nil {
		t.Fatalf("stored match: %v, %v", m, err)
	}
	if m.Status != StatusActive {
		t.Fatalf("match status = %q, want %q", m.Status, StatusActive)
	}

	// The fallback window must die with the pairing: no bot match later.
	time.Sleep(100 * time.Millisecond)
	if alice.count() != 1 {
		t.Fatalf("alice has %d events after fallback window, want 1", alice.count())
	}
}

func TestSearchImmediateBotMatch(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Options{})
	conn := newFakeConn("conn-alice")

	c.Search(context.Background(), conn, 1, "hard")

	got := conn.last(t)
	if got.event != EventDuelFound {
		t.Fatalf("event = %q, want %q", got.event, EventDuelFound)
	}
	found := got.payload.(FoundPayload)
	if found.Player2ID != BotID || found.Player2Name != BotName {
		t.Fatalf("opponent = %d %q, want %d %q", found.Player2ID, found.Player2Name, BotID, BotName)
	}
	if found.Difficulty != sudoku.Hard {
		t.Fatalf("difficulty = %q, want hard", found.Difficulty)
	}
	if c.Queue().Len(sudoku.Hard) != 0 {
		t.Fatalf("search with immediate bot match must not enqueue")
	}
}

func TestSearchFallbackToBotAfterWindow(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Options{BotFallbackWait: 20 * time.Millisecond})
	conn := newFakeConn("conn-alice")

	c.Search(context.Background(), conn, 1, "medium")
	if conn.count() != 0 {
		t.Fatalf("got %d events before the window elapsed, want 0", conn.count())
	}

	waitFor(t, time.Second, func() bool { return conn.count() > 0 })

	found := conn.last(t).payload.(FoundPayload)
	if found.Player2ID != BotID {
		t.Fatalf("fallback opponent = %d, want %d", found.Player2ID, BotID)
	}
	if c.Queue().Len(sudoku.Medium) != 0 {
		t.Fatalf("ticket still queued after fallback")
	}
}

func TestCancelSearchStopsFallback(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Options{BotFallbackWait: 20 * time.Millisecond})
	conn := newFakeConn("conn-alice")

	c.Search(context.Background(), conn, 1, "medium")
	c.CancelSearch(1, "medium")

	if c.Queue().Len(sudoku.Medium) != 0 {
		t.Fatalf("ticket still queued after cancel")
	}
	time.Sleep(80 * time.Millisecond)
	if conn.count() != 0 {
		t.Fatalf("got %d events after cancel, want 0", conn.count())
	}
}

func TestSearchUnknownUser(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Options{})
	conn := newFakeConn("conn-x")

	c.Search(context.Background(), conn, 42, "medium")

	if got := conn.last(t); got.event != EventError {
		t.Fatalf("event = %q, want %q", got.event, EventError)
	}
	if c.Queue().Len(sudoku.Medium) != 0 {
		t.Fatalf("failed search must not enqueue")
	}
}

func TestProgressRelay(t *testing.T) {
	c, store, _ := newTestCoordinator(t, Options{BotFallbackWait: time.Minute})
	alice, bob, matchID := pair(t, c)
	ctx := context.Background()

	c.ReportProgress(ctx, alice, matchID, 47, 2)

	got := bob.last(t)
	if got.event != EventOpponentProgress {
		t.Fatalf("bob event = %q, want %q", got.event, EventOpponentProgress)
	}
	if p := got.payload.(ProgressPayload); p.Progress != 47 || p.Mistakes != 2 {
		t.Fatalf("relayed payload = %+v, want 47/2", p)
	}
	if alice.count() != 1 {
		t.Fatalf("reporter received %d events, want 1 (only duel_found)", alice.count())
	}

	m, _ := store.Get(ctx, matchID)
	if m.Player1Progress != 47 || m.Player1Mistakes != 2 {
		t.Fatalf("persisted progress = %d/%d, want 47/2", m.Player1Progress, m.Player1Mistakes)
	}

	// Unknown match and non-participant handles are silent no-ops.
	c.ReportProgress(ctx, alice, "no-such-match", 10, 0)
	c.ReportProgress(ctx, newFakeConn("stranger"), matchID, 10, 0)
	if bob.count() != 2 {
		t.Fatalf("bob has %d events, want 2", bob.count())
	}
}

func TestCompletionFlow(t *testing.T) {
	c, store, users := newTestCoordinator(t, Options{BotFallbackWait: time.Minute})
	alice, bob, matchID := pair(t, c)
	ctx := context.Background()

	c.ReportCompletion(ctx, bob, matchID)

	got := alice.last(t)
	if got.event != EventDuelFinished {
		t.Fatalf("alice event = %q, want %q", got.event, EventDuelFinished)
	}
	if p := got.payload.(FinishedPayload); p.WinnerID != "player2" {
		t.Fatalf("winner slot = %q, want player2", p.WinnerID)
	}
	if c.ActiveSession(matchID) {
		t.Fatalf("session still active after completion")
	}

	m, _ := store.Get(ctx, matchID)
	if m.Status != StatusFinished || m.WinnerID != 2 {
		t.Fatalf("stored outcome = %q/%d, want finished/2", m.Status, m.WinnerID)
	}

	winner, _ := users.FindByID(ctx, 2)
	if winner.XP != user.DuelWinBonus || winner.Wins != 1 || winner.Streak != 1 {
		t.Fatalf("winner profile = %+v, want xp=%d wins=1 streak=1", winner, user.DuelWinBonus)
	}
	loser, _ := users.FindByID(ctx, 1)
	if loser.XP != 0 || loser.Streak != 0 {
		t.Fatalf("loser profile = %+v, want untouched xp and zero streak", loser)
	}

	// Second terminal report must change nothing and notify nobody.
	c.ReportCompletion(ctx, alice, matchID)
	if bob.count() != 1 {
		t.Fatalf("bob has %d events after stale completion, want 1", bob.count())
	}
	m, _ = store.Get(ctx, matchID)
	if m.WinnerID != 2 {
		t.Fatalf("winner overwritten to %d by stale completion", m.WinnerID)
	}
}

func TestCompletionVerifierRejects(t *testing.T) {
	verifier := func(ctx context.Context, m *Match, claimantID int64) error {
		return errors.New("board incomplete")
	}
	c, store, _ := newTestCoordinator(t, Options{BotFallbackWait: time.Minute, Verifier: verifier})
	alice, bob, matchID := pair(t, c)
	ctx := context.Background()

	c.ReportCompletion(ctx, alice, matchID)

	if got := alice.last(t); got.event != EventError {
		t.Fatalf("claimant event = %q, want %q", got.event, EventError)
	}
	if bob.count() != 1 {
		t.Fatalf("opponent notified of a rejected claim")
	}
	if !c.ActiveSession(matchID) {
		t.Fatalf("session torn down by a rejected claim")
	}
	if m, _ := store.Get(ctx, matchID); m.Status != StatusActive {
		t.Fatalf("match status = %q, want still active", m.Status)
	}
}

func TestEliminationFlow(t *testing.T) {
	c, store, users := newTestCoordinator(t, Options{BotFallbackWait: time.Minute})
	alice, bob, matchID := pair(t, c)
	ctx := context.Background()

	c.ReportElimination(ctx, alice, matchID)

	if got := bob.last(t); got.event != EventOpponentEliminated {
		t.Fatalf("bob event = %q, want %q", got.event, EventOpponentEliminated)
	}
	if alice.count() != 1 {
		t.Fatalf("eliminated side received %d events, want 1", alice.count())
	}
	m, _ := store.Get(ctx, matchID)
	if m.Status != StatusFinished || m.WinnerID != 2 {
		t.Fatalf("stored outcome = %q/%d, want finished/2", m.Status, m.WinnerID)
	}
	if winner, _ := users.FindByID(ctx, 2); winner.Wins != 1 {
		t.Fatalf("winner wins = %d, want 1", winner.Wins)
	}
}

func TestAbandonFlow(t *testing.T) {
	c, store, _ := newTestCoordinator(t, Options{BotFallbackWait: time.Minute})
	alice, bob, matchID := pair(t, c)
	ctx := context.Background()

	c.ReportAbandon(ctx, bob, matchID)

	// Abandon is surfaced to the remaining side as a disconnect.
	if got := alice.last(t); got.event != EventOpponentDisconnected {
		t.Fatalf("alice event = %q, want %q", got.event, EventOpponentDisconnected)
	}
	if bob.count() != 1 {
		t.Fatalf("abandoning side received %d events, want 1", bob.count())
	}
	m, _ := store.Get(ctx, matchID)
	if m.Status != StatusFinished || m.WinnerID != 1 {
		t.Fatalf("stored outcome = %q/%d, want finished/1", m.Status, m.WinnerID)
	}
}

func TestDisconnectWhileQueued(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Options{BotFallbackWait: 20 * time.Millisecond})
	conn := newFakeConn("conn-alice")

	c.Search(context.Background(), conn, 1, "medium")
	c.Disconnect(conn)

	if c.Queue().Len(sudoku.Medium) != 0 {
		t.Fatalf("ticket survived disconnect")
	}
	time.Sleep(80 * time.Millisecond)
	if conn.count() != 0 {
		t.Fatalf("fallback fired for a disconnected searcher (%d events)", conn.count())
	}
}

func TestDisconnectDuringMatch(t *testing.T) {
	c, store, users := newTestCoordinator(t, Options{BotFallbackWait: time.Minute})
	alice, bob, matchID := pair(t, c)
	ctx := context.Background()

	c.Disconnect(bob)

	if got := alice.last(t); got.event != EventOpponentDisconnected {
		t.Fatalf("alice event = %q, want %q", got.event, EventOpponentDisconnected)
	}
	if alice.count() != 2 {
		t.Fatalf("alice has %d events, want exactly one disconnect notice after duel_found", alice.count())
	}
	if c.ActiveSession(matchID) {
		t.Fatalf("session survived disconnect")
	}
	m, _ := store.Get(ctx, matchID)
	if m.Status != StatusFinished || m.WinnerID != 1 {
		t.Fatalf("stored outcome = %q/%d, want finished/1", m.Status, m.WinnerID)
	}
	if winner, _ := users.FindByID(ctx, 1); winner.Wins != 1 {
		t.Fatalf("winner wins = %d, want 1", winner.Wins)
	}

	// A late report on the dead match must be a silent no-op.
	c.ReportCompletion(ctx, alice, matchID)
	if alice.count() != 2 {
		t.Fatalf("alice has %d events after stale report, want 2", alice.count())
	}
}

func TestRelayMessageBetweenPlayers(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Options{BotFallbackWait: time.Minute})
	alice, bob, matchID := pair(t, c)

	c.RelayMessage(alice, matchID, 1, "gl hf")

	got := bob.last(t)
	if got.event != EventDuelMessage {
		t.Fatalf("bob event = %q, want %q", got.event, EventDuelMessage)
	}
	if p := got.payload.(MessagePayload); p.SenderID != 1 || p.Content != "gl hf" {
		t.Fatalf("relayed message = %+v", p)
	}
	if alice.count() != 1 {
		t.Fatalf("sender received %d events, want 1", alice.count())
	}
}

func TestBotRepliesToMessages(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Options{BotReplyDelay: 5 * time.Millisecond})
	conn := newFakeConn("conn-alice")
	c.Search(context.Background(), conn, 1, "easy")
	matchID := conn.last(t).payload.(FoundPayload).ID

	c.RelayMessage(conn, matchID, 1, "hello bot")

	waitFor(t, time.Second, func() bool { return conn.count() >= 2 })
	got := conn.last(t)
	if got.event != EventDuelMessage {
		t.Fatalf("event = %q, want %q", got.event, EventDuelMessage)
	}
	p := got.payload.(MessagePayload)
	if p.SenderID != BotID || p.Content == "" {
		t.Fatalf("bot reply = %+v, want sender %d with canned content", p, BotID)
	}
}

func TestBotReplySuppressedAfterTeardown(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Options{BotReplyDelay: 30 * time.Millisecond})
	conn := newFakeConn("conn-alice")
	ctx := context.Background()
	c.Search(ctx, conn, 1, "easy")
	matchID := conn.last(t).payload.(FoundPayload).ID

	c.RelayMessage(conn, matchID, 1, "hello bot")
	c.ReportCompletion(ctx, conn, matchID)

	n := conn.count()
	time.Sleep(100 * time.Millisecond)
	if conn.count() != n {
		t.Fatalf("bot replied into a finished duel")
	}
}
