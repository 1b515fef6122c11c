package tilemap

import (
	"fmt"
	"math/rand/v2"
)

// Dir is a facing direction. The numeric value is what gets stored in
// tile metadata; the glyph is what gets persisted.
type Dir uint8

const (
	DirUp Dir = iota
	DirRight
	DirDown
	DirLeft
)

var dirGlyphs = [4]string{"^", ">", "v", "<"}

func AllDirs() [4]Dir { return [4]Dir{DirUp, DirRight, DirDown, DirLeft} }

// DirFromByte mirrors the tile metadata encoding; out-of-range values map to DirLeft.
func DirFromByte(b uint8) Dir {
	if b > 3 {
		return DirLeft
	}
	return Dir(b)
}

func RandomDir(rng *rand.Rand) Dir { return Dir(rng.IntN(4)) }

func (d Dir) TurnedLeft() Dir  { return (d + 3) % 4 }
func (d Dir) TurnedRight() Dir { return (d + 1) % 4 }

func (d Dir) Vec() Vec2 {
	switch d {
	case DirUp:
		return Vec2{X: 0, Y: -1}
	case DirRight:
		return Vec2{X: 1, Y: 0}
	case DirDown:
		return Vec2{X: 0, Y: 1}
	default:
		return Vec2{X: -1, Y: 0}
	}
}

func (d Dir) String() string {
	if d > 3 {
		return dirGlyphs[3]
	}
	return dirGlyphs[d]
}

func ParseDir(s string) (Dir, error) {
	for i, g := range dirGlyphs {
		if g == s {
			return Dir(i), nil
		}
	}
	return 0, fmt.Errorf("unknown dir %q", s)
}

func (d Dir) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Dir) UnmarshalText(b []byte) error {
	v, err := ParseDir(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
