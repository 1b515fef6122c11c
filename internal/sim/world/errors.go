package world

import "errors"

var (
	ErrTooManyQueuedBots = errors.New("too many robots queued, try again in a moment")
	ErrWorldBusy         = errors.New("world is busy, try again in a moment")
	ErrWorldClosed       = errors.New("world has shut down")
	ErrEventsDisabled    = errors.New("events are disabled for this world")
	ErrSeedWithPath      = errors.New("seed and path are mutually exclusive: rng state is not persisted")
	ErrPolicyLimit       = errors.New("policy limit out of range")
	ErrInvalidFirmware   = errors.New("invalid firmware")
)
