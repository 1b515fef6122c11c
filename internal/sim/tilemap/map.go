package tilemap

import (
	"fmt"
	"math/rand/v2"
	"strings"

	simenc "kartoffels.dev/internal/sim/encoding"
)

// Map is a fixed-size grid of tiles. Out-of-bounds reads return void.
type Map struct {
	size  Vec2
	tiles []Tile
}

// New returns a map of the given size filled with void tiles.
func New(size Vec2) Map {
	if size.X < 0 {
		size.X = 0
	}
	if size.Y < 0 {
		size.Y = 0
	}
	m := Map{size: size, tiles: make([]Tile, size.X*size.Y)}
	m.Fill(NewTile(TileVoid))
	return m
}

func (m Map) Size() Vec2 { return m.size }

func (m Map) Contains(p Vec2) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < m.size.X && p.Y < m.size.Y
}

func (m Map) Get(p Vec2) Tile {
	if !m.Contains(p) {
		return NewTile(TileVoid)
	}
	return m.tiles[p.Y*m.size.X+p.X]
}

func (m *Map) Set(p Vec2, t Tile) {
	if !m.Contains(p) {
		return
	}
	m.tiles[p.Y*m.size.X+p.X] = t
}

// Fill sets every tile to t.
func (m *Map) Fill(t Tile) {
	for i := range m.tiles {
		m.tiles[i] = t
	}
}

// Clone returns a deep copy.
func (m Map) Clone() Map {
	tiles := make([]Tile, len(m.tiles))
	copy(tiles, m.tiles)
	return Map{size: m.size, tiles: tiles}
}

func (m Map) Equal(o Map) bool {
	if m.size != o.size || len(m.tiles) != len(o.tiles) {
		return false
	}
	for i := range m.tiles {
		if m.tiles[i] != o.tiles[i] {
			return false
		}
	}
	return true
}

// SampleFloor picks a random floor tile for which free reports true, giving
// up after attempts tries.
func (m Map) SampleFloor(rng *rand.Rand, attempts int, free func(Vec2) bool) (Vec2, bool) {
	if m.size.X == 0 || m.size.Y == 0 {
		return Vec2{}, false
	}
	for i := 0; i < attempts; i++ {
		p := Vec2{X: rng.IntN(m.size.X), Y: rng.IntN(m.size.Y)}
		if !m.Get(p).IsFloor() {
			continue
		}
		if free != nil && !free(p) {
			continue
		}
		return p, true
	}
	return Vec2{}, false
}

// EncodeTiles packs the tiles row-major and run-length encodes them.
func (m Map) EncodeTiles() string {
	packed := make([]uint32, len(m.tiles))
	for i, t := range m.tiles {
		packed[i] = t.Pack()
	}
	return simenc.EncodeRuns(packed)
}

// MaxCells bounds the area of a decoded map.
const MaxCells = 1 << 24

// DecodeMap rebuilds a map written by EncodeTiles. The size usually comes
// from a file, so it is checked before anything is allocated.
func DecodeMap(size Vec2, data string) (Map, error) {
	if size.X < 0 || size.Y < 0 {
		return Map{}, fmt.Errorf("decode map: negative size %v", size)
	}
	if size.X > 0 && size.Y > MaxCells/size.X {
		return Map{}, fmt.Errorf("decode map: size %v exceeds %d cells", size, MaxCells)
	}
	packed, err := simenc.DecodeRuns(data, size.X*size.Y)
	if err != nil {
		return Map{}, fmt.Errorf("decode tiles: %w", err)
	}
	m := New(size)
	for i, v := range packed {
		m.tiles[i] = UnpackTile(v)
	}
	return m, nil
}

// String renders the base glyph of every tile, one row per line.
func (m Map) String() string {
	var b strings.Builder
	for y := 0; y < m.size.Y; y++ {
		for x := 0; x < m.size.X; x++ {
			b.WriteByte(byte(m.Get(Vec2{X: x, Y: y}).Base))
		}
		if y+1 < m.size.Y {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Parse builds a map from rows of glyphs; rows shorter than the widest are
// padded with void.
func Parse(rows ...string) Map {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	m := New(Vec2{X: w, Y: len(rows)})
	for y, r := range rows {
		for x := 0; x < len(r); x++ {
			m.Set(Vec2{X: x, Y: y}, NewTile(TileKind(r[x])))
		}
	}
	return m
}
