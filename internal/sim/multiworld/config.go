package multiworld

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"kartoffels.dev/internal/protocol"
	"kartoffels.dev/internal/sim/tilemap"
	"kartoffels.dev/internal/sim/tuning"
	"kartoffels.dev/internal/sim/world"
)

type Config struct {
	DefaultWorldID string      `yaml:"default_world_id"`
	Worlds         []WorldSpec `yaml:"worlds"`
}

// WorldSpec describes one hosted world. Policy, theme and mode only apply
// when the world is first created; a resumed world keeps what it saved.
type WorldSpec struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Theme       string     `yaml:"theme"`
	ArenaRadius int        `yaml:"arena_radius"`
	Clock       string     `yaml:"clock"`
	TickRateHz  int        `yaml:"tick_rate_hz"`
	SubTicks    int        `yaml:"sub_ticks"`
	Policy      PolicySpec `yaml:"policy"`
	Mode        ModeSpec   `yaml:"mode"`
	Events      *bool      `yaml:"events"`
}

type PolicySpec struct {
	MaxAliveBots  int   `yaml:"max_alive_bots"`
	MaxQueuedBots int   `yaml:"max_queued_bots"`
	AutoRespawn   *bool `yaml:"auto_respawn"`
	RespawnReset  *bool `yaml:"respawn_reset"`
}

type ModeSpec struct {
	Type       string `yaml:"type"`
	RoundTicks uint64 `yaml:"round_ticks"`
}

const (
	ThemeArena = "arena"

	ClockAuto   = "auto"
	ClockManual = "manual"

	ModeDeathmatch = "deathmatch"
)

var worldIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultWorldID: "arena",
		Worlds: []WorldSpec{
			{
				ID:          "arena",
				Name:        "Arena",
				Theme:       ThemeArena,
				ArenaRadius: 20,
				Clock:       ClockAuto,
				Mode:        ModeSpec{Type: ModeDeathmatch},
			},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	for i := range c.Worlds {
		w := &c.Worlds[i]
		w.ID = strings.TrimSpace(w.ID)
		if strings.TrimSpace(w.Name) == "" {
			w.Name = w.ID
		}
		if w.Theme == "" {
			w.Theme = ThemeArena
		}
		if w.Theme == ThemeArena && w.ArenaRadius == 0 {
			w.ArenaRadius = 20
		}
		w.Clock = strings.ToLower(strings.TrimSpace(w.Clock))
		if w.Clock == "" {
			w.Clock = ClockAuto
		}
		if w.SubTicks == 0 {
			w.SubTicks = 1
		}
		def := world.DefaultPolicy()
		if w.Policy.MaxAliveBots == 0 && w.Policy.MaxQueuedBots == 0 {
			w.Policy.MaxAliveBots = def.MaxAliveBots
			w.Policy.MaxQueuedBots = def.MaxQueuedBots
		}
		if w.Policy.AutoRespawn == nil {
			w.Policy.AutoRespawn = boolPtr(def.AutoRespawn)
		}
		if w.Policy.RespawnReset == nil {
			w.Policy.RespawnReset = boolPtr(def.RespawnReset)
		}
		w.Mode.Type = strings.ToLower(strings.TrimSpace(w.Mode.Type))
		if w.Events == nil {
			w.Events = boolPtr(true)
		}
	}
	if c.DefaultWorldID == "" && len(c.Worlds) > 0 {
		c.DefaultWorldID = c.Worlds[0].ID
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Worlds) == 0 {
		return fmt.Errorf("worlds must not be empty")
	}
	seen := map[string]bool{}
	for _, w := range c.Worlds {
		if w.ID == "" {
			return fmt.Errorf("world id must not be empty")
		}
		if !worldIDPattern.MatchString(w.ID) {
			return fmt.Errorf("world id %q must match %s", w.ID, worldIDPattern)
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate world id: %s", w.ID)
		}
		seen[w.ID] = true
		switch w.Theme {
		case ThemeArena:
			if w.ArenaRadius <= 0 || w.ArenaRadius > 512 {
				return fmt.Errorf("world %s arena_radius must be in [1, 512]", w.ID)
			}
		default:
			return fmt.Errorf("world %s has unknown theme %q", w.ID, w.Theme)
		}
		if w.Clock != ClockAuto && w.Clock != ClockManual {
			return fmt.Errorf("world %s clock must be %q or %q", w.ID, ClockAuto, ClockManual)
		}
		if w.TickRateHz < 0 || w.TickRateHz > 1000 {
			return fmt.Errorf("world %s tick_rate_hz must be in [0, 1000]", w.ID)
		}
		if w.SubTicks < 0 {
			return fmt.Errorf("world %s sub_ticks must be >= 0", w.ID)
		}
		if err := w.WorldPolicy().Validate(); err != nil {
			return fmt.Errorf("world %s: %w", w.ID, err)
		}
		switch w.Mode.Type {
		case "", ModeDeathmatch:
		default:
			return fmt.Errorf("world %s has unknown mode %q", w.ID, w.Mode.Type)
		}
	}
	if c.DefaultWorldID == "" {
		return fmt.Errorf("default_world_id must not be empty")
	}
	if !seen[c.DefaultWorldID] {
		return fmt.Errorf("default_world_id %q not found in worlds", c.DefaultWorldID)
	}
	return nil
}

func (w WorldSpec) WorldPolicy() world.Policy {
	p := world.Policy{
		MaxAliveBots:  w.Policy.MaxAliveBots,
		MaxQueuedBots: w.Policy.MaxQueuedBots,
	}
	if w.Policy.AutoRespawn != nil {
		p.AutoRespawn = *w.Policy.AutoRespawn
	}
	if w.Policy.RespawnReset != nil {
		p.RespawnReset = *w.Policy.RespawnReset
	}
	return p
}

// WorldClock falls back to the server tuning for rate and sub-ticks.
func (w WorldSpec) WorldClock(t tuning.Tuning) world.Clock {
	if w.Clock == ClockManual {
		c := world.ManualClock()
		c.SubTicks = w.subTicks(t)
		return c
	}
	hz := w.TickRateHz
	if hz <= 0 {
		hz = t.TickRateHz
	}
	c := world.AutoClock(tickInterval(hz))
	c.SubTicks = w.subTicks(t)
	return c
}

func (w WorldSpec) subTicks(t tuning.Tuning) int {
	if w.SubTicks > 1 {
		return w.SubTicks
	}
	if t.SubTicks > 0 {
		return t.SubTicks
	}
	return 1
}

func (w WorldSpec) WorldTheme() tilemap.Theme {
	return tilemap.ArenaTheme{Radius: w.ArenaRadius}
}

func (w WorldSpec) WorldMode() world.Mode {
	if w.Mode.Type == ModeDeathmatch {
		return world.NewDeathmatch(w.Mode.RoundTicks)
	}
	return nil
}

func (w WorldSpec) EventsEnabled() bool {
	return w.Events == nil || *w.Events
}

func (c Config) Manifest(t tuning.Tuning) []protocol.WorldRef {
	out := make([]protocol.WorldRef, 0, len(c.Worlds))
	for _, w := range c.Worlds {
		ref := protocol.WorldRef{
			WorldID:       w.ID,
			Name:          w.Name,
			Theme:         w.Theme,
			Clock:         w.Clock,
			Mode:          w.Mode.Type,
			MaxAliveBots:  w.Policy.MaxAliveBots,
			MaxQueuedBots: w.Policy.MaxQueuedBots,
			Events:        w.EventsEnabled(),
		}
		if w.Clock == ClockAuto {
			ref.TickRateHz = w.TickRateHz
			if ref.TickRateHz <= 0 {
				ref.TickRateHz = t.TickRateHz
			}
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out
}

func (c Config) WorldSpecByID(id string) (WorldSpec, bool) {
	for _, w := range c.Worlds {
		if w.ID == id {
			return w, true
		}
	}
	return WorldSpec{}, false
}

func boolPtr(b bool) *bool { return &b }
