package tilemap

import (
	"fmt"
	"math/rand/v2"
)

// Theme generates a fresh map for a newly created world.
type Theme interface {
	CreateMap(rng *rand.Rand) (Map, error)
}

// ArenaTheme is a circular floor surrounded by walls.
type ArenaTheme struct {
	Radius int
}

func (t ArenaTheme) CreateMap(_ *rand.Rand) (Map, error) {
	if t.Radius <= 0 {
		return Map{}, fmt.Errorf("arena radius must be positive, got %d", t.Radius)
	}
	r := t.Radius
	center := Vec2{X: r + 1, Y: r + 1}
	m := New(Vec2{X: 2*r + 3, Y: 2*r + 3})

	inside := func(p Vec2) bool {
		d := p.Sub(center)
		return d.X*d.X+d.Y*d.Y <= r*r
	}

	for y := 0; y < m.size.Y; y++ {
		for x := 0; x < m.size.X; x++ {
			p := Vec2{X: x, Y: y}
			if inside(p) {
				m.Set(p, NewTile(TileFloor))
			}
		}
	}

	// Walls go on void cells touching the floor: horizontal where the floor
	// is above or below, vertical otherwise.
	for y := 0; y < m.size.Y; y++ {
		for x := 0; x < m.size.X; x++ {
			p := Vec2{X: x, Y: y}
			if inside(p) {
				continue
			}
			up, down := inside(p.Add(DirUp.Vec())), inside(p.Add(DirDown.Vec()))
			left, right := inside(p.Add(DirLeft.Vec())), inside(p.Add(DirRight.Vec()))
			switch {
			case up || down:
				m.Set(p, NewTile(TileWallH))
			case left || right:
				m.Set(p, NewTile(TileWallV))
			}
		}
	}

	return m, nil
}

// FixedTheme always returns a copy of the same map.
type FixedTheme struct {
	Map Map
}

func (t FixedTheme) CreateMap(_ *rand.Rand) (Map, error) { return t.Map.Clone(), nil }
