package world

import "fmt"

// MaxBots bounds both policy maxima: alive bots are referenced from tile
// metadata by a single-byte slot index.
const MaxBots = 256

type Policy struct {
	MaxAliveBots  int  `json:"max_alive_bots" yaml:"max_alive_bots"`
	MaxQueuedBots int  `json:"max_queued_bots" yaml:"max_queued_bots"`
	AutoRespawn   bool `json:"auto_respawn" yaml:"auto_respawn"`
	// RespawnReset rebuilds a respawned bot's runtime from its firmware.
	// When false the runtime keeps whatever state it had when it died.
	RespawnReset bool `json:"respawn_reset" yaml:"respawn_reset"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAliveBots:  16,
		MaxQueuedBots: 16,
		AutoRespawn:   true,
		RespawnReset:  true,
	}
}

func (p Policy) Validate() error {
	if p.MaxAliveBots < 0 || p.MaxAliveBots > MaxBots {
		return fmt.Errorf("%w: max_alive_bots=%d (must be 0..%d)", ErrPolicyLimit, p.MaxAliveBots, MaxBots)
	}
	if p.MaxQueuedBots < 0 || p.MaxQueuedBots > MaxBots {
		return fmt.Errorf("%w: max_queued_bots=%d (must be 0..%d)", ErrPolicyLimit, p.MaxQueuedBots, MaxBots)
	}
	return nil
}
