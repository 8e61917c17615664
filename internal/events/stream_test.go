package events

import (
	"errors"
	"testing"
	"time"

	"planetarena/server/internal/state"
)

func fixedClock() time.Time { return time.Unix(1700000000, 0) }

func TestStreamPagesAfterCursor(t *testing.T) {
	//1.- Arrange a stream with three deaths.
	stream := NewStream(Config{Retain: 8, Clock: fixedClock})
	stream.PublishDeath(state.DeathEvent{PlayerID: "b", KillerID: "a", Tick: 10})
	stream.PublishDeath(state.DeathEvent{PlayerID: "c", KillerID: "a", Tick: 11})
	stream.PublishDeath(state.DeathEvent{PlayerID: "a", KillerID: "c", Tick: 12})

	//2.- Read them in pages of two.
	page, err := stream.Since(0, 2)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(page.Events) != 2 || page.Latest != 3 || page.Missed != 0 {
		t.Fatalf("unexpected first page %+v", page)
	}
	if page.Events[0].Sequence != 1 || page.Events[0].Death.PlayerID != "b" || page.Events[0].Kind != KindDeath {
		t.Fatalf("unexpected first event %+v", page.Events[0])
	}
	if !page.Events[0].OccurredAt.Equal(fixedClock()) {
		t.Fatalf("expected injected clock, got %v", page.Events[0].OccurredAt)
	}
	page, err = stream.Since(page.Events[1].Sequence, 2)
	if err != nil {
		t.Fatalf("since second page: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].Tick != 12 {
		t.Fatalf("unexpected second page %+v", page)
	}

	//3.- A cursor from the future is rejected.
	if _, err := stream.Since(9, 0); !errors.Is(err, ErrFutureCursor) {
		t.Fatalf("expected ErrFutureCursor, got %v", err)
	}
}

func TestStreamRetentionReportsMissedEvents(t *testing.T) {
	stream := NewStream(Config{Retain: 2})
	for tick := uint64(1); tick <= 5; tick++ {
		stream.PublishDeath(state.DeathEvent{PlayerID: "p", Tick: tick})
	}
	page, err := stream.Since(0, 10)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	//1.- Only sequences 4 and 5 survive; the reader missed 1-3.
	if len(page.Events) != 2 || page.Events[0].Sequence != 4 || page.Missed != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page, _ := stream.Since(3, 10); page.Missed != 0 || len(page.Events) != 2 {
		t.Fatalf("expected a caught-up cursor to miss nothing, got %+v", page)
	}
}

func TestStreamPageIsACopy(t *testing.T) {
	stream := NewStream(Config{})
	stream.PublishDeath(state.DeathEvent{PlayerID: "p", KillerID: "k", Tick: 1})
	page, _ := stream.Since(0, 0)
	page.Events[0].Death.PlayerID = "mutated"
	again, _ := stream.Since(0, 0)
	if again.Events[0].Death.PlayerID != "p" {
		t.Fatalf("expected the log to be isolated from readers, got %+v", again.Events[0].Death)
	}
}

func TestStreamEmptyPage(t *testing.T) {
	stream := NewStream(Config{})
	page, err := stream.Since(0, 0)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if page.Events == nil || len(page.Events) != 0 || page.Latest != 0 {
		t.Fatalf("expected an empty page, got %+v", page)
	}
}

func TestScoreboardRanksPlayers(t *testing.T) {
	stream := NewStream(Config{})
	stream.PublishSnapshot(state.Snapshot{Tick: 40})
	stream.PublishDeath(state.DeathEvent{PlayerID: "b", KillerID: "a", Tick: 10})
	stream.PublishDeath(state.DeathEvent{PlayerID: "c", KillerID: "a", Tick: 11})
	stream.PublishDeath(state.DeathEvent{PlayerID: "a", KillerID: "d", Tick: 12})
	//1.- Hitting yourself is a death without a kill.
	stream.PublishDeath(state.DeathEvent{PlayerID: "d", KillerID: "d", Tick: 13})

	board := stream.Scoreboard()
	if board.Tick != 40 {
		t.Fatalf("expected tick 40, got %d", board.Tick)
	}
	want := []Score{
		{PlayerID: "a", Kills: 2, Deaths: 1},
		{PlayerID: "d", Kills: 1, Deaths: 1},
		{PlayerID: "b", Deaths: 1},
		{PlayerID: "c", Deaths: 1},
	}
	if len(board.Scores) != len(want) {
		t.Fatalf("expected %d scores, got %+v", len(want), board.Scores)
	}
	for i := range want {
		if board.Scores[i] != want[i] {
			t.Fatalf("rank %d: expected %+v, got %+v", i, want[i], board.Scores[i])
		}
	}
}
