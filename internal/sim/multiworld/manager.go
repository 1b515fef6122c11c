package multiworld

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kartoffels.dev/internal/persistence/archive"
	plog "kartoffels.dev/internal/persistence/log"
	"kartoffels.dev/internal/protocol"
	"kartoffels.dev/internal/sim/tuning"
	"kartoffels.dev/internal/sim/world"
)

// Runtime is one hosted world.
type Runtime struct {
	Spec    WorldSpec
	Handle  *world.Handle
	Path    string
	Resumed bool

	journal *plog.EventJournal
}

// Options are shared by every world the manager opens.
type Options struct {
	// DataDir holds `worlds/<id>.world` and per-world journals. Empty means
	// worlds are never saved.
	DataDir  string
	Tuning   tuning.Tuning
	Runtimes world.RuntimeFactory
	Logger   *log.Logger
	Indexer  world.SaveIndexer
	// Mirror receives journaled events; nil keeps them on disk only.
	Mirror plog.Mirror
	// Journal writes every world's events under `<DataDir>/journal/<id>`.
	Journal bool
}

const (
	stateVersion    = 1
	persistDebounce = 500 * time.Millisecond
)

type persistedState struct {
	Version    int               `json:"version"`
	BotToWorld map[string]string `json:"bot_to_world"`
}

type Manager struct {
	mu sync.RWMutex

	runtimes  map[string]*Runtime
	cfg       Config
	tune      tuning.Tuning
	defaultID string
	stateFile string
	log       *log.Logger

	botToWorld map[world.BotID]string

	followers sync.WaitGroup

	persistCh    chan struct{}
	persistFlush chan chan struct{}
	persistStop  chan struct{}
	persistWG    sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error
}

// Open creates or resumes every world in cfg. A world whose file exists is
// resumed from it (older files are backed up before migration); otherwise
// it is created from its spec. On failure the worlds opened so far are
// shut down again.
func Open(ctx context.Context, cfg Config, opts Options) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Runtimes == nil {
		return nil, fmt.Errorf("runtime factory is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Tuning.TickRateHz == 0 {
		opts.Tuning = tuning.Defaults()
	}

	m := &Manager{
		runtimes:   map[string]*Runtime{},
		cfg:        cfg,
		tune:       opts.Tuning,
		defaultID:  cfg.DefaultWorldID,
		log:        opts.Logger,
		botToWorld: map[world.BotID]string{},
	}
	if opts.DataDir != "" {
		m.stateFile = filepath.Join(opts.DataDir, "manager_state.json")
		m.loadState()
	}

	for _, spec := range cfg.Worlds {
		rt, err := m.open(ctx, spec, opts)
		if err != nil {
			_ = m.shutdownAll(ctx)
			m.followers.Wait()
			return nil, fmt.Errorf("world %s: %w", spec.ID, err)
		}
		m.runtimes[spec.ID] = rt
	}

	if m.stateFile != "" {
		m.persistCh = make(chan struct{}, 1)
		m.persistFlush = make(chan chan struct{})
		m.persistStop = make(chan struct{})
		m.persistWG.Add(1)
		go m.persistLoop()
	}
	return m, nil
}

func (m *Manager) open(ctx context.Context, spec WorldSpec, opts Options) (*Runtime, error) {
	t := opts.Tuning
	rt := &Runtime{Spec: spec}
	if opts.DataDir != "" {
		rt.Path = filepath.Join(opts.DataDir, "worlds", spec.ID+".world")
	}

	var h *world.Handle
	var err error
	if rt.Path != "" && fileExists(rt.Path) {
		if bp, ok, err := archive.BackupBeforeMigration(rt.Path); err != nil {
			return nil, fmt.Errorf("backup before migration: %w", err)
		} else if ok {
			m.log.Printf("world %s: backed up old file to %s", spec.ID, bp)
		}
		h, err = world.Resume(ctx, spec.ID, rt.Path, world.ResumeOptions{
			Clock:           spec.WorldClock(t),
			Events:          spec.EventsEnabled(),
			EventCapacity:   t.EventCapacity,
			RequestCapacity: t.RequestCapacity,
			SaveEvery:       t.SaveEvery(),
			SpawnAttempts:   t.SpawnAttempts,
			Runtimes:        opts.Runtimes,
			Logger:          opts.Logger,
			Indexer:         opts.Indexer,
		})
		if err != nil {
			return nil, err
		}
		rt.Resumed = true
	} else {
		h, err = world.Create(world.Config{
			ID:              spec.ID,
			Name:            spec.Name,
			Path:            rt.Path,
			Policy:          spec.WorldPolicy(),
			Clock:           spec.WorldClock(t),
			Theme:           spec.WorldTheme(),
			Mode:            spec.WorldMode(),
			Events:          spec.EventsEnabled(),
			EventCapacity:   t.EventCapacity,
			RequestCapacity: t.RequestCapacity,
			SaveEvery:       t.SaveEvery(),
			SpawnAttempts:   t.SpawnAttempts,
			Runtimes:        opts.Runtimes,
			Logger:          opts.Logger,
			Indexer:         opts.Indexer,
		})
		if err != nil {
			return nil, err
		}
	}
	rt.Handle = h
	m.log.Printf("world %s: %s clock=%s resumed=%v", spec.ID, spec.Name, spec.WorldClock(t), rt.Resumed)

	if opts.Journal && opts.DataDir != "" && spec.EventsEnabled() {
		stream, err := h.Listen(ctx)
		if err != nil {
			_ = h.Shutdown(ctx)
			h.Release()
			return nil, fmt.Errorf("listen: %w", err)
		}
		rt.journal = plog.NewEventJournal(filepath.Join(opts.DataDir, "journal", spec.ID), spec.ID, opts.Mirror)
		m.followers.Add(1)
		go func() {
			defer m.followers.Done()
			if err := rt.journal.Follow(context.Background(), stream); err != nil {
				m.log.Printf("world %s: journal: %v", spec.ID, err)
			}
			if err := rt.journal.Close(); err != nil {
				m.log.Printf("world %s: journal close: %v", spec.ID, err)
			}
		}()
	}
	return rt, nil
}

func (m *Manager) WorldIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Runtime(id string) *Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runtimes[id]
}

func (m *Manager) DefaultID() string { return m.defaultID }

// Pick returns the requested world, or the default one when pref is empty.
func (m *Manager) Pick(pref string) (*Runtime, bool) {
	if pref == "" {
		pref = m.defaultID
	}
	rt := m.Runtime(pref)
	return rt, rt != nil
}

func (m *Manager) Manifest() []protocol.WorldRef {
	return m.cfg.Manifest(m.tune)
}

// CreateBot uploads firmware into world id and remembers where the bot
// lives.
func (m *Manager) CreateBot(ctx context.Context, id string, firmware []byte) (world.BotID, error) {
	rt := m.Runtime(id)
	if rt == nil {
		return 0, ErrUnknownWorld
	}
	bot, err := rt.Handle.CreateBot(ctx, firmware, nil)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.botToWorld[bot] = id
	m.schedulePersistLocked()
	m.mu.Unlock()
	return bot, nil
}

// BotWorld returns the world a bot was uploaded to through CreateBot.
func (m *Manager) BotWorld(bot world.BotID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.botToWorld[bot]
	return id, ok
}

var ErrUnknownWorld = errors.New("unknown world")

// Close shuts every world down in parallel (each saves before it acks),
// waits for the journals to drain and writes the manager state.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.closeErr = m.shutdownAll(ctx)
		m.followers.Wait()
		if m.persistStop != nil {
			close(m.persistStop)
		}
		m.persistWG.Wait()
	})
	return m.closeErr
}

func (m *Manager) shutdownAll(ctx context.Context) error {
	m.mu.RLock()
	rts := make([]*Runtime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		rts = append(rts, rt)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, rt := range rts {
		rt := rt
		g.Go(func() error {
			defer rt.Handle.Release()
			err := rt.Handle.Shutdown(gctx)
			if errors.Is(err, world.ErrWorldClosed) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("world %s: %w", rt.Spec.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) FlushState(ctx context.Context) error {
	if m.stateFile == "" || m.persistFlush == nil {
		return nil
	}
	ack := make(chan struct{})
	select {
	case m.persistFlush <- ack:
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

func (m *Manager) schedulePersistLocked() {
	if m.stateFile == "" || m.persistCh == nil {
		return
	}
	select {
	case m.persistCh <- struct{}{}:
	default:
	}
}

func (m *Manager) persistLoop() {
	defer m.persistWG.Done()
	var timer *time.Timer
	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
	}
	for {
		var timerCh <-chan time.Time
		if timer != nil {
			timerCh = timer.C
		}
		select {
		case <-m.persistStop:
			stopTimer()
			m.persistNow()
			return
		case <-m.persistCh:
			if timer == nil {
				timer = time.NewTimer(persistDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(persistDebounce)
			}
		case ack := <-m.persistFlush:
			stopTimer()
			m.persistNow()
			if ack != nil {
				close(ack)
			}
		case <-timerCh:
			stopTimer()
			m.persistNow()
		}
	}
}

func (m *Manager) persistNow() {
	m.mu.RLock()
	st := persistedState{Version: stateVersion, BotToWorld: make(map[string]string, len(m.botToWorld))}
	for bot, id := range m.botToWorld {
		st.BotToWorld[bot.String()] = id
	}
	m.mu.RUnlock()
	m.writeState(st)
}

func (m *Manager) writeState(st persistedState) {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		m.log.Printf("manager state encode: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.stateFile), 0o755); err != nil {
		m.log.Printf("manager state mkdir: %v", err)
		return
	}
	tmp := m.stateFile + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		m.log.Printf("manager state write: %v", err)
		return
	}
	if err := os.Rename(tmp, m.stateFile); err != nil {
		m.log.Printf("manager state rename: %v", err)
	}
}

// loadState restores the bot index. Bots of worlds no longer configured
// are dropped.
func (m *Manager) loadState() {
	b, err := os.ReadFile(m.stateFile)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Printf("manager state read: %v", err)
		}
		return
	}
	var st persistedState
	if err := json.Unmarshal(b, &st); err != nil {
		m.log.Printf("manager state decode: %v", err)
		return
	}
	if st.Version != stateVersion {
		m.log.Printf("manager state version %d ignored", st.Version)
		return
	}
	for raw, id := range st.BotToWorld {
		bot, err := world.ParseBotID(raw)
		if err != nil {
			continue
		}
		if _, ok := m.cfg.WorldSpecByID(id); !ok {
			continue
		}
		m.botToWorld[bot] = id
	}
}

func tickInterval(hz int) time.Duration {
	if hz <= 0 {
		return world.DefaultTickInterval
	}
	return time.Second / time.Duration(hz)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
