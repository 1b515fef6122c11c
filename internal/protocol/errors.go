package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldBusy     = "E_WORLD_BUSY"
	ErrWorldNotFound = "E_WORLD_NOT_FOUND"
	ErrWorldClosed   = "E_WORLD_CLOSED"

	// Bot commands.
	ErrBadRequest      = "E_BAD_REQUEST"
	ErrBotNotFound     = "E_BOT_NOT_FOUND"
	ErrInvalidFirmware = "E_INVALID_FIRMWARE"
	ErrTooManyBots     = "E_TOO_MANY_BOTS"
	ErrEventsDisabled  = "E_EVENTS_DISABLED"
	ErrRateLimit       = "E_RATE_LIMIT"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrWorldNotFound:   {},
	ErrWorldClosed:     {},
	ErrBadRequest:      {},
	ErrBotNotFound:     {},
	ErrInvalidFirmware: {},
	ErrTooManyBots:     {},
	ErrEventsDisabled:  {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
