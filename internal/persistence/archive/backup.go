package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"kartoffels.dev/internal/persistence/store"
)

type BackupMeta struct {
	WorldID     string `json:"world_id"`
	FromVersion int    `json:"from_version"`
	ToVersion   int    `json:"to_version"`
	Source      string `json:"source"`
	Backup      string `json:"backup"`
	CreatedAt   string `json:"created_at"`
}

// BackupBeforeMigration copies the world file at path into
// `<dir of path>/backups/<base>.v<N>` when its stored version is older than
// store.Version. It returns (backupPath, backedUp=true) when a copy was made.
// Existing backups of the same version are left alone.
func BackupBeforeMigration(path string) (backupPath string, backedUp bool, err error) {
	h, err := store.ReadHeader(path)
	if err != nil {
		return "", false, err
	}
	if h.Version >= store.Version {
		return "", false, nil
	}

	dir := filepath.Join(filepath.Dir(path), "backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(dir, fmt.Sprintf("%s.v%d", filepath.Base(path), h.Version))
	if _, err := os.Stat(dst); err == nil {
		return dst, false, nil
	}
	if err := copyFile(path, dst); err != nil {
		return "", false, fmt.Errorf("backup %s: %w", path, err)
	}

	meta := BackupMeta{
		WorldID:     h.WorldID,
		FromVersion: h.Version,
		ToVersion:   store.Version,
		Source:      filepath.Base(path),
		Backup:      filepath.Base(dst),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(dst+".json", b, 0o644)
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
		_ = os.Remove(tmp)
	}()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
