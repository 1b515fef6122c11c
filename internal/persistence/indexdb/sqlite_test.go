package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"kartoffels.dev/internal/sim/world"
)

func TestSQLiteIndex_RecordsSavesAndEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "worlds.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_ = idx.RecordSave(ctx, world.SaveRecord{WorldID: "w1", Name: "arena", Path: "/d/w1.world", Tick: 10, AliveBots: 2, At: at})
	_ = idx.RecordSave(ctx, world.SaveRecord{WorldID: "w1", Name: "arena", Path: "/d/w1.world", Tick: 20, AliveBots: 3, DeadBots: 1, At: at.Add(time.Minute)})
	_ = idx.RecordSave(ctx, world.SaveRecord{WorldID: "w2", Name: "pit", Path: "/d/w2.world", Tick: 5, QueuedBots: 4, At: at})
	_ = idx.RecordEvent(ctx, "w1", 3, "bot_created", []byte(`{"id":"0000-0000-0000-0001"}`))
	_ = idx.RecordEvent(ctx, "w1", 4, "bot_spawned", []byte(`{}`))
	_ = idx.RecordEvent(ctx, "w1", 9, "bot_created", []byte(`{}`))

	worlds, err := idx.Worlds(ctx)
	if err != nil {
		t.Fatalf("worlds: %v", err)
	}
	if len(worlds) != 2 {
		t.Fatalf("worlds=%d want 2", len(worlds))
	}
	if w := worlds[0]; w.WorldID != "w1" || w.Tick != 20 || w.Saves != 2 || w.AliveBots != 3 || w.DeadBots != 1 {
		t.Fatalf("unexpected w1 row: %+v", w)
	}
	if w := worlds[1]; w.WorldID != "w2" || w.QueuedBots != 4 || w.Saves != 1 {
		t.Fatalf("unexpected w2 row: %+v", w)
	}

	counts, err := idx.EventCounts(ctx, "w1")
	if err != nil {
		t.Fatalf("event counts: %v", err)
	}
	if counts["bot_created"] != 2 || counts["bot_spawned"] != 1 {
		t.Fatalf("counts=%v", counts)
	}

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM saves`).Scan(&n); err != nil {
		t.Fatalf("count saves: %v", err)
	}
	if n != 3 {
		t.Fatalf("saves=%d want 3", n)
	}
	var v string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v); err != nil || v != "1" {
		t.Fatalf("schema_version=%q err=%v", v, err)
	}
}

func TestSQLiteIndex_CloseFlushesPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worlds.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 50; i++ {
		_ = idx.RecordEvent(context.Background(), "w1", uint64(i), "bot_killed", []byte(`{}`))
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Writes after close are ignored.
	_ = idx.RecordEvent(context.Background(), "w1", 99, "bot_killed", nil)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 50 {
		t.Fatalf("events=%d want 50", n)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqEvent}

	_ = s.RecordSave(context.Background(), world.SaveRecord{WorldID: "w1"})
	_ = s.RecordEvent(context.Background(), "w1", 1, "bot_created", nil)

	st := s.Stats()
	if st.DropSaveTotal != 1 {
		t.Fatalf("DropSaveTotal=%d want=1", st.DropSaveTotal)
	}
	if st.DropEventTotal != 1 {
		t.Fatalf("DropEventTotal=%d want=1", st.DropEventTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
