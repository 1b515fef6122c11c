package tilemap

import (
	"encoding/json"
	"fmt"
)

type Vec2 struct {
	X int
	Y int
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

func (v Vec2) ToArray() [2]int { return [2]int{v.X, v.Y} }

func (v Vec2) String() string { return fmt.Sprintf("(%d, %d)", v.X, v.Y) }

func Vec2FromArray(a [2]int) Vec2 { return Vec2{X: a[0], Y: a[1]} }

// MarshalJSON writes the vector as [x, y].
func (v Vec2) MarshalJSON() ([]byte, error) { return json.Marshal(v.ToArray()) }

func (v *Vec2) UnmarshalJSON(b []byte) error {
	var a [2]int
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*v = Vec2FromArray(a)
	return nil
}

func Manhattan(a, b Vec2) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}
