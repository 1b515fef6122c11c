package tilemap

// TileKind is the base of a tile; values are the glyphs used when rendering.
type TileKind uint8

const (
	TileVoid       TileKind = ' '
	TileFloor      TileKind = '.'
	TileWallH      TileKind = '-'
	TileWallV      TileKind = '|'
	TileBot        TileKind = '@'
	TileBotChevron TileKind = '~'
)

// Tile is a single grid cell. For TileBot and TileBotChevron, Meta[0] is the
// slot index of the bot in the alive collection and Meta[1] its facing.
type Tile struct {
	Base TileKind
	Meta [3]uint8
}

func NewTile(base TileKind) Tile { return Tile{Base: base} }

func (t Tile) IsFloor() bool { return t.Base == TileFloor }
func (t Tile) IsVoid() bool  { return t.Base == TileVoid }
func (t Tile) IsBot() bool   { return t.Base == TileBot || t.Base == TileBotChevron }

// Pack encodes the tile as base<<24 | meta.
func (t Tile) Pack() uint32 {
	return uint32(t.Base)<<24 | uint32(t.Meta[0])<<16 | uint32(t.Meta[1])<<8 | uint32(t.Meta[2])
}

func UnpackTile(v uint32) Tile {
	return Tile{
		Base: TileKind(v >> 24),
		Meta: [3]uint8{uint8(v >> 16), uint8(v >> 8), uint8(v)},
	}
}
