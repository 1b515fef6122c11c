package tilemap

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
)

func TestMap_GetOutOfBoundsIsVoid(t *testing.T) {
	m := Parse("...", "...")
	if got := m.Get(Vec2{X: -1, Y: 0}); got.Base != TileVoid {
		t.Fatalf("got %q want void", got.Base)
	}
	if got := m.Get(Vec2{X: 3, Y: 1}); got.Base != TileVoid {
		t.Fatalf("got %q want void", got.Base)
	}
	if got := m.Get(Vec2{X: 2, Y: 1}); got.Base != TileFloor {
		t.Fatalf("got %q want floor", got.Base)
	}
}

func TestMap_EncodeDecodeRoundTrip(t *testing.T) {
	m := Parse(
		" --- ",
		"|...|",
		" --- ",
	)
	m.Set(Vec2{X: 2, Y: 1}, Tile{Base: TileBot, Meta: [3]uint8{7, 2, 0}})

	got, err := DecodeMap(m.Size(), m.EncodeTiles())
	if err != nil {
		t.Fatalf("DecodeMap: %v", err)
	}
	if !got.Equal(m) {
		t.Fatalf("round trip mismatch:\n%s\nvs\n%s", got, m)
	}
}

func TestMap_DecodeRejectsWrongSize(t *testing.T) {
	m := Parse("...")
	if _, err := DecodeMap(Vec2{X: 4, Y: 1}, m.EncodeTiles()); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}

func TestMap_DecodeRejectsBadDimensions(t *testing.T) {
	tiles := Parse("...").EncodeTiles()
	for _, size := range []Vec2{
		{X: -1, Y: 3},
		{X: 3, Y: -1},
		{X: 1 << 31, Y: 1 << 31},
		{X: MaxCells, Y: 2},
	} {
		if _, err := DecodeMap(size, tiles); err == nil {
			t.Fatalf("size %v: expected error", size)
		}
	}

	empty, err := DecodeMap(Vec2{}, New(Vec2{}).EncodeTiles())
	if err != nil || empty.Size() != (Vec2{}) {
		t.Fatalf("empty map: size=%v err=%v", empty.Size(), err)
	}
}

func TestMap_SampleFloor(t *testing.T) {
	m := Parse("   ", " . ", "   ")
	rng := rand.New(rand.NewPCG(1, 2))

	p, ok := m.SampleFloor(rng, 1000, nil)
	if !ok || p != (Vec2{X: 1, Y: 1}) {
		t.Fatalf("SampleFloor: p=%v ok=%v", p, ok)
	}

	_, ok = m.SampleFloor(rng, 1000, func(Vec2) bool { return false })
	if ok {
		t.Fatalf("expected no free floor")
	}
}

func TestArenaTheme_HasFloorInsideWalls(t *testing.T) {
	m, err := ArenaTheme{Radius: 4}.CreateMap(nil)
	if err != nil {
		t.Fatalf("CreateMap: %v", err)
	}
	center := Vec2{X: 5, Y: 5}
	if !m.Get(center).IsFloor() {
		t.Fatalf("center is %q", m.Get(center).Base)
	}
	if got := m.Get(Vec2{X: 5, Y: 0}).Base; got != TileWallH {
		t.Fatalf("top wall is %q", got)
	}
	if got := m.Get(Vec2{X: 0, Y: 5}).Base; got != TileWallV {
		t.Fatalf("left wall is %q", got)
	}
}

func TestDir_TurnsAndGlyphs(t *testing.T) {
	if DirUp.TurnedLeft() != DirLeft || DirLeft.TurnedRight() != DirUp {
		t.Fatalf("turns broken")
	}
	for _, d := range AllDirs() {
		got, err := ParseDir(d.String())
		if err != nil || got != d {
			t.Fatalf("ParseDir(%q) = %v, %v", d.String(), got, err)
		}
	}
	if DirFromByte(9) != DirLeft {
		t.Fatalf("DirFromByte fallback")
	}
}

func TestVec2AndDir_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Pos Vec2 `json:"pos"`
		Dir Dir  `json:"dir"`
	}{Vec2{X: 3, Y: -1}, DirDown})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"pos":[3,-1],"dir":"v"}` {
		t.Fatalf("json=%s", b)
	}

	var back struct {
		Pos Vec2 `json:"pos"`
		Dir Dir  `json:"dir"`
	}
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Pos != (Vec2{X: 3, Y: -1}) || back.Dir != DirDown {
		t.Fatalf("back=%+v", back)
	}
	if err := json.Unmarshal([]byte(`{"dir":"north"}`), &back); err == nil {
		t.Fatalf("expected unknown dir error")
	}
}
