package world

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// BotID identifies a bot within its world. The zero value is never handed
// out.
type BotID uint64

func newBotID(rng *rand.Rand) BotID {
	for {
		if id := BotID(rng.Uint64()); id != 0 {
			return id
		}
	}
}

// String renders the id as four dash-separated groups of hex digits.
func (id BotID) String() string {
	v := uint64(id)
	return fmt.Sprintf("%04x-%04x-%04x-%04x", v>>48, (v>>32)&0xffff, (v>>16)&0xffff, v&0xffff)
}

func ParseBotID(s string) (BotID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return 0, fmt.Errorf("invalid bot id %q", s)
	}
	var v uint64
	for _, p := range parts {
		if len(p) != 4 {
			return 0, fmt.Errorf("invalid bot id %q", s)
		}
		n, err := strconv.ParseUint(p, 16, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid bot id %q: %w", s, err)
		}
		v = v<<16 | n
	}
	return BotID(v), nil
}

func (id BotID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *BotID) UnmarshalText(b []byte) error {
	v, err := ParseBotID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
