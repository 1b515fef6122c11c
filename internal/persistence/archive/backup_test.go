package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"kartoffels.dev/internal/persistence/store"
)

func writeVersioned(t *testing.T, path string, version int) []byte {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	if _, err := enc.Write([]byte(`{"version":` + string(rune('0'+version)) + `,"world_id":"w1","name":"arena"}` + "\n\xa0")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close enc: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return raw
}

func TestBackupBeforeMigration_CopiesOldFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "w1.world")
	want := writeVersioned(t, src, 2)

	dst, ok, err := BackupBeforeMigration(src)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !ok {
		t.Fatalf("expected backedUp=true")
	}
	if dst != filepath.Join(dir, "backups", "w1.world.v2") {
		t.Fatalf("dst=%q", dst)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("backup content mismatch")
	}
	if _, err := os.Stat(dst + ".json"); err != nil {
		t.Fatalf("expected meta.json: %v", err)
	}

	// A second call keeps the first copy.
	_, ok, err = BackupBeforeMigration(src)
	if err != nil || ok {
		t.Fatalf("second backup: ok=%v err=%v", ok, err)
	}
}

func TestBackupBeforeMigration_SkipsCurrentVersion(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "w1.world")
	doc := store.Document{Name: "arena", Policy: store.PolicyV4{MaxAliveBots: 1, MaxQueuedBots: 1}}
	if err := store.Write(context.Background(), src, store.Header{WorldID: "w1"}, doc); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, ok, err := BackupBeforeMigration(src)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if ok {
		t.Fatalf("current version must not be backed up")
	}
	if _, err := os.Stat(filepath.Join(dir, "backups")); !os.IsNotExist(err) {
		t.Fatalf("backups dir should not exist: %v", err)
	}
}

func TestBackupBeforeMigration_MissingFile(t *testing.T) {
	_, _, err := BackupBeforeMigration(filepath.Join(t.TempDir(), "nope.world"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
