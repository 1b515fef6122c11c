package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func sampleDocument() Document {
	killer := "0000-0000-0000-0001"
	pos := [2]int{2, 0}
	return Document{
		Name: "sandbox",
		Policy: PolicyV4{
			MaxAliveBots:  16,
			MaxQueuedBots: 16,
			AutoRespawn:   true,
			RespawnReset:  true,
		},
		Mode: &ModeV4{
			Type:       "deathmatch",
			RoundTicks: 100,
			Elapsed:    7,
			Scores:     map[string]uint64{killer: 2},
		},
		Map: MapV4{Size: [2]int{3, 1}, Tiles: "LgAAAAM="},
		Bots: BotsV4{
			Alive: []AliveBotV4{
				{ID: killer, Pos: [2]int{1, 0}, Dir: ">", Firmware: []byte("ff"), State: []byte{1, 2}},
			},
			Dead: []DeadBotV4{
				{ID: "0000-0000-0000-0002", Reason: "stabbed", Killer: &killer, Firmware: []byte("f")},
				{ID: "0000-0000-0000-0003", Reason: "firmware crashed: trap", Firmware: []byte("x")},
			},
			Queued: []QueuedBotV4{
				{ID: "0000-0000-0000-0004", Firmware: []byte("l"), Requeued: true, Pos: &pos},
			},
		},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worlds", "w1.world")
	want := sampleDocument()

	if err := Write(context.Background(), path, Header{WorldID: "w1", Name: want.Name}, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}

	h, got, err := Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.Version != Version || h.WorldID != "w1" || h.Name != "sandbox" {
		t.Fatalf("header=%+v", h)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("document mismatch:\n got=%+v\nwant=%+v", got, want)
	}
}

func TestRead_MigratesOldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.world")
	v1 := map[string]any{
		"name":            "legacy",
		"max_alive_bots":  uint64(4),
		"max_queued_bots": uint64(2),
		"auto_respawn":    false,
		"map":             map[string]any{"size": []any{uint64(1), uint64(1)}, "tiles": "LgAAAAE="},
		"bots": []any{
			map[string]any{"state": "alive", "id": "0000-0000-0000-0009", "pos": []any{uint64(0), uint64(0)}, "dir": uint64(2), "firmware": []byte("f")},
			map[string]any{"state": "dead", "id": "0000-0000-0000-000a", "reason": "fell into the void", "firmware": []byte("f")},
		},
	}
	body, err := encMode.Marshal(v1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := writeRaw(path, Header{Version: 1, WorldID: "legacy"}, body); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}

	h, doc, err := Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.Version != 1 {
		t.Fatalf("header version=%d want 1", h.Version)
	}
	if doc.Policy != (PolicyV4{MaxAliveBots: 4, MaxQueuedBots: 2, RespawnReset: true}) {
		t.Fatalf("policy=%+v", doc.Policy)
	}
	if len(doc.Bots.Alive) != 1 || doc.Bots.Alive[0].Dir != "v" {
		t.Fatalf("alive=%+v", doc.Bots.Alive)
	}
	if len(doc.Bots.Dead) != 1 || doc.Bots.Dead[0].Killer != nil {
		t.Fatalf("dead=%+v", doc.Bots.Dead)
	}
}

func TestRead_RejectsFutureVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.world")
	body, _ := encMode.Marshal(map[string]any{})
	if err := writeRaw(path, Header{Version: Version + 1}, body); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
	if _, _, err := Read(context.Background(), path); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestRead_FailedMigrationAborts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.world")
	body, _ := encMode.Marshal(map[string]any{
		"policy": map[string]any{},
		"bots":   []any{map[string]any{"state": "?"}},
	})
	if err := writeRaw(path, Header{Version: 2}, body); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
	_, _, err := Read(context.Background(), path)
	var merr *MigrationError
	if !errors.As(err, &merr) || merr.Version != 3 {
		t.Fatalf("expected v3 MigrationError, got %v", err)
	}
}

func TestReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.world")
	if err := Write(context.Background(), path, Header{WorldID: "w", Name: "n"}, sampleDocument()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Version != Version || h.WorldID != "w" {
		t.Fatalf("header=%+v", h)
	}
}
