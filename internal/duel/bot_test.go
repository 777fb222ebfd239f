package duel

import (
	"context"
	"testing"
	"time"
)

func TestBotEliminatedAfterForcedMistakes(t *testing.T) {
	opts := Options{Bot: BotConfig{
		TickInterval:  2 * time.Millisecond,
		MistakeChance: 1.0,
		Seed:          7,
	}}
	c, store, users := newTestCoordinator(t, opts)
	conn := newFakeConn("conn-alice")
	ctx := context.Background()

	c.Search(ctx, conn, 1, "medium")
	matchID := conn.last(t).payload.(FoundPayload).ID

	waitFor(t, 2*time.Second, func() bool {
		for _, e := range conn.all() {
			if e.event == EventOpponentEliminated {
				return true
			}
		}
		return false
	})
	time.Sleep(30 * time.Millisecond) // give a runaway loop time to betray itself

	events := conn.all()
	eliminations := 0
	for i, e := range events {
		switch e.event {
		case EventOpponentEliminated:
			eliminations++
			if i != len(events)-1 {
				t.Fatalf("events after elimination: %v", events[i+1:])
			}
		case EventOpponentProgress:
			p := e.payload.(ProgressPayload)
			if p.Mistakes >= 3 {
				t.Fatalf("progress event with %d mistakes, want elimination instead", p.Mistakes)
			}
		}
	}
	if eliminations != 1 {
		t.Fatalf("got %d elimination events, want exactly 1", eliminations)
	}

	if c.ActiveSession(matchID) {
		t.Fatalf("session still active after bot elimination")
	}
	m, _ := store.Get(ctx, matchID)
	if m.Status != StatusFinished || m.WinnerID != 1 {
		t.Fatalf("stored outcome = %q/%d, want finished/1", m.Status, m.WinnerID)
	}
	winner, _ := users.FindByID(ctx, 1)
	if winner.Wins != 1 || winner.XP == 0 {
		t.Fatalf("winner profile = %+v, want the win settled", winner)
	}
}

func TestBotStopsAtFullProgressWithoutWinning(t *testing.T) {
	opts := Options{Bot: BotConfig{
		TickInterval:  2 * time.Millisecond,
		MinStep:       50,
		MaxStep:       50,
		MistakeChance: -1, // below any roll, so the bot never errs
		Seed:          7,
	}}
	c, store, _ := newTestCoordinator(t, opts)
	conn := newFakeConn("conn-alice")
	ctx := context.Background()

	c.Search(ctx, conn, 1, "medium")
	matchID := conn.last(t).payload.(FoundPayload).ID

	waitFor(t, 2*time.Second, func() bool {
		e := conn.last(t)
		if e.event != EventOpponentProgress {
			return false
		}
		return e.payload.(ProgressPayload).Progress >= 100
	})

	// Reaching 100 stops the simulator but decides nothing.
	n := conn.count()
	time.Sleep(30 * time.Millisecond)
	if conn.count() != n {
		t.Fatalf("simulator kept emitting after full progress")
	}
	if !c.ActiveSession(matchID) {
		t.Fatalf("session closed by the simulator reaching full progress")
	}
	if m, _ := store.Get(ctx, matchID); m.Status != StatusActive {
		t.Fatalf("match status = %q, want still active", m.Status)
	}
}

func TestCompletionStopsBotTicks(t *testing.T) {
	opts := Options{Bot: BotConfig{
		TickInterval:  5 * time.Millisecond,
		MinStep:       1,
		MaxStep:       1,
		MistakeChance: -1,
		Seed:          7,
	}}
	c, store, _ := newTestCoordinator(t, opts)
	conn := newFakeConn("conn-alice")
	ctx := context.Background()

	c.Search(ctx, conn, 1, "medium")
	matchID := conn.last(t).payload.(FoundPayload).ID

	c.ReportCompletion(ctx, conn, matchID)

	m, _ := store.Get(ctx, matchID)
	if m.Status != StatusFinished || m.WinnerID != 1 {
		t.Fatalf("stored outcome = %q/%d, want finished/1", m.Status, m.WinnerID)
	}

	// A tick already in flight when the stop fires may still land.
	time.Sleep(20 * time.Millisecond)
	n := conn.count()
	time.Sleep(50 * time.Millisecond)
	if conn.count() != n {
		t.Fatalf("bot ticks kept arriving after completion")
	}
}
