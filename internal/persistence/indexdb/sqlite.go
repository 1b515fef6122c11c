package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"kartoffels.dev/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSave  atomic.Uint64
	dropEvent atomic.Uint64
}

type reqKind int

const (
	reqSave reqKind = iota + 1
	reqEvent
	reqFlush
)

type req struct {
	kind reqKind

	save  saveRow
	event eventRow
	ack   chan struct{}
}

// WorldRow is the latest save of one world.
type WorldRow struct {
	WorldID    string
	Name       string
	Path       string
	Tick       uint64
	AliveBots  int
	DeadBots   int
	QueuedBots int
	Saves      int
	SavedAt    string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS worlds (
			world_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			tick INTEGER NOT NULL,
			alive INTEGER NOT NULL,
			dead INTEGER NOT NULL,
			queued INTEGER NOT NULL,
			saves INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			alive INTEGER NOT NULL,
			dead INTEGER NOT NULL,
			queued INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_world_tick ON saves(world_id, tick);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_world_tick ON events(world_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, world_id);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropSaveTotal:  s.dropSave.Load(),
		DropEventTotal: s.dropEvent.Load(),
	}
}

// RecordSave implements world.SaveIndexer.
func (s *SQLiteIndex) RecordSave(_ context.Context, rec world.SaveRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqSave, save: saveRowFrom(rec)}:
	default:
		// Drop if the indexer falls behind; the world file is the source of truth.
		s.dropSave.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordEvent(_ context.Context, worldID string, tick uint64, typ string, payload []byte) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	r := eventRow{
		WorldID:    worldID,
		Tick:       tick,
		Type:       typ,
		Payload:    string(payload),
		RecordedAt: time.Now().UTC().Format(timeLayout),
	}
	select {
	case s.ch <- req{kind: reqEvent, event: r}:
	default:
		s.dropEvent.Add(1)
	}
	return nil
}

// Flush waits until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return nil
	}
	ack := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Worlds returns the latest save of every indexed world, ordered by id.
func (s *SQLiteIndex) Worlds(ctx context.Context) ([]WorldRow, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT world_id,name,path,tick,alive,dead,queued,saves,saved_at FROM worlds ORDER BY world_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorldRow
	for rows.Next() {
		var r WorldRow
		var tick int64
		if err := rows.Scan(&r.WorldID, &r.Name, &r.Path, &tick, &r.AliveBots, &r.DeadBots, &r.QueuedBots, &r.Saves, &r.SavedAt); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventCounts returns the number of indexed events per type for worldID.
func (s *SQLiteIndex) EventCounts(ctx context.Context, worldID string) (map[string]int, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM events WHERE world_id=? GROUP BY type`, worldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSave, _ := s.db.Prepare(`INSERT INTO saves(world_id,tick,path,alive,dead,queued,duration_ms,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	upsertWorld, _ := s.db.Prepare(`INSERT INTO worlds(world_id,name,path,tick,alive,dead,queued,saves,saved_at) VALUES(?,?,?,?,?,?,?,1,?)
		ON CONFLICT(world_id) DO UPDATE SET name=excluded.name, path=excluded.path, tick=excluded.tick,
		alive=excluded.alive, dead=excluded.dead, queued=excluded.queued, saves=worlds.saves+1, saved_at=excluded.saved_at`)
	insertEvent, _ := s.db.Prepare(`INSERT INTO events(world_id,tick,type,payload,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertSave, upsertWorld, insertEvent} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 500 * time.Millisecond
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			if time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		if r.kind == reqFlush {
			commit()
			close(r.ack)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSave:
			sv := r.save
			if !exec(insertSave, sv.WorldID, int64(sv.Tick), sv.Path, sv.AliveBots, sv.DeadBots, sv.QueuedBots, sv.DurationMS, sv.RecordedAt) {
				continue
			}
			exec(upsertWorld, sv.WorldID, sv.Name, sv.Path, int64(sv.Tick), sv.AliveBots, sv.DeadBots, sv.QueuedBots, sv.RecordedAt)

		case reqEvent:
			ev := r.event
			exec(insertEvent, ev.WorldID, int64(ev.Tick), ev.Type, ev.Payload, ev.RecordedAt)
		}
		if tx != nil && opCount >= commitEvery {
			commit()
		}
	}
}
