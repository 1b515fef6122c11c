package multiworld

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	plog "kartoffels.dev/internal/persistence/log"
	"kartoffels.dev/internal/persistence/store"
	"kartoffels.dev/internal/sim/botvm"
	"kartoffels.dev/internal/sim/tuning"
	"kartoffels.dev/internal/sim/world"
)

func testConfig() Config {
	cfg := Config{
		DefaultWorldID: "pit",
		Worlds: []WorldSpec{
			{ID: "pit", ArenaRadius: 3, Clock: ClockManual},
			{ID: "yard", ArenaRadius: 2, Clock: ClockManual, Events: boolPtr(false)},
		},
	}
	cfg.Normalize()
	return cfg
}

func openTestManager(t *testing.T, dataDir string, journal bool) *Manager {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m, err := Open(ctx, testConfig(), Options{
		DataDir:  dataDir,
		Tuning:   tuning.Defaults(),
		Runtimes: botvm.Factory{},
		Journal:  journal,
	})
	if err != nil {
		t.Fatalf("open manager: %v", err)
	}
	return m
}

func TestManager_CreatesThenResumes(t *testing.T) {
	dataDir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m := openTestManager(t, dataDir, false)
	if got := m.WorldIDs(); len(got) != 2 || got[0] != "pit" || got[1] != "yard" {
		t.Fatalf("world ids=%v", got)
	}
	rt, ok := m.Pick("")
	if !ok || rt.Spec.ID != "pit" || rt.Resumed {
		t.Fatalf("default pick: %+v ok=%v", rt, ok)
	}

	bot, err := m.CreateBot(ctx, "pit", []byte("w"))
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
	if err := rt.Handle.Step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if _, err := m.CreateBot(ctx, "nowhere", []byte("w")); err != ErrUnknownWorld {
		t.Fatalf("expected ErrUnknownWorld, got %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-rt.Handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("world should be done after Close")
	}

	for _, id := range []string{"pit", "yard"} {
		h, err := store.ReadHeader(filepath.Join(dataDir, "worlds", id+".world"))
		if err != nil {
			t.Fatalf("%s not saved: %v", id, err)
		}
		if h.WorldID != id || h.Version != store.Version {
			t.Fatalf("unexpected header: %+v", h)
		}
	}

	m2 := openTestManager(t, dataDir, false)
	defer func() { _ = m2.Close(context.Background()) }()

	rt2 := m2.Runtime("pit")
	if rt2 == nil || !rt2.Resumed {
		t.Fatalf("pit should be resumed: %+v", rt2)
	}
	bots, err := rt2.Handle.GetBots(ctx)
	if err != nil {
		t.Fatalf("get bots: %v", err)
	}
	if len(bots) != 1 || bots[0].ID != bot || bots[0].State != world.BotStateAlive {
		t.Fatalf("unexpected bots after resume: %+v", bots)
	}
	if id, ok := m2.BotWorld(bot); !ok || id != "pit" {
		t.Fatalf("bot index not restored: %q %v", id, ok)
	}
}

func TestManager_JournalsEvents(t *testing.T) {
	dataDir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m := openTestManager(t, dataDir, true)
	if _, err := m.CreateBot(ctx, "pit", []byte("w")); err != nil {
		t.Fatalf("create bot: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := plog.ReadJournal(filepath.Join(dataDir, "journal", "pit"))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	var types []string
	for _, e := range entries {
		types = append(types, e.Type)
	}
	if len(types) != 2 || types[0] != "bot_created" || types[1] != "shutdown_requested" {
		t.Fatalf("journal types=%v", types)
	}
	// Events are off for yard, so it has no journal.
	if _, err := os.Stat(filepath.Join(dataDir, "journal", "yard")); !os.IsNotExist(err) {
		t.Fatalf("yard should not be journaled: %v", err)
	}
}

func TestManager_WithoutDataDirNeverSaves(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m, err := Open(ctx, testConfig(), Options{Runtimes: botvm.Factory{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if rt := m.Runtime("pit"); rt.Path != "" {
		t.Fatalf("path=%q want empty", rt.Path)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Close is idempotent.
	if err := m.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpen_RequiresRuntimes(t *testing.T) {
	if _, err := Open(context.Background(), testConfig(), Options{}); err == nil {
		t.Fatalf("expected error without runtime factory")
	}
}
