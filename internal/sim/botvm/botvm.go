// Package botvm is a small motor-script runtime for bots. Firmware is a
// program of single-character ops that is executed one op per turn and
// loops forever:
//
//	f  move forward
//	l  turn left
//	r  turn right
//	R  turn to a random direction
//	s  stab whatever stands in front
//	w  wait
//	?  skip the next op unless a bot stands in front
//	x  trap
//
// Whitespace is ignored and '#' starts a comment that runs to the end of
// the line.
package botvm

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/fxamacker/cbor/v2"

	"kartoffels.dev/internal/sim/tilemap"
	"kartoffels.dev/internal/sim/world"
)

const DefaultMaxProgram = 4096

var ErrEmptyProgram = errors.New("empty program")

type Op byte

const (
	OpForward Op = 'f'
	OpLeft    Op = 'l'
	OpRight   Op = 'r'
	OpRandom  Op = 'R'
	OpStab    Op = 's'
	OpWait    Op = 'w'
	OpIfBot   Op = '?'
	OpTrap    Op = 'x'
)

// Compile strips comments and whitespace and checks every op.
func Compile(src []byte, maxLen int) ([]Op, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxProgram
	}
	var prog []Op
	comment := false
	for i, c := range src {
		switch {
		case comment:
			if c == '\n' {
				comment = false
			}
		case c == '#':
			comment = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		default:
			switch Op(c) {
			case OpForward, OpLeft, OpRight, OpRandom, OpStab, OpWait, OpIfBot, OpTrap:
				prog = append(prog, Op(c))
			default:
				return nil, fmt.Errorf("unknown op %q at byte %d", c, i)
			}
		}
		if len(prog) > maxLen {
			return nil, fmt.Errorf("program longer than %d ops", maxLen)
		}
	}
	if len(prog) == 0 {
		return nil, ErrEmptyProgram
	}
	return prog, nil
}

// Runtime executes a compiled program for one bot.
type Runtime struct {
	prog  []Op
	pc    int
	ticks uint64
}

type state struct {
	PC    int    `cbor:"pc"`
	Ticks uint64 `cbor:"ticks"`
}

func (r *Runtime) PC() int       { return r.pc }
func (r *Runtime) Ticks() uint64 { return r.ticks }

func (r *Runtime) Tick(rng *rand.Rand, m *tilemap.Map, loc world.Locator, pos tilemap.Vec2, dir tilemap.Dir) (world.Outcome, error) {
	r.ticks++
	op := r.prog[r.pc]
	pc := r.pc
	r.pc = (r.pc + 1) % len(r.prog)

	out := world.Stay(pos, dir)
	front := pos.Add(dir.Vec())
	switch op {
	case OpForward:
		out.Pos = front
	case OpLeft:
		out.Dir = dir.TurnedLeft()
	case OpRight:
		out.Dir = dir.TurnedRight()
	case OpRandom:
		out.Dir = tilemap.RandomDir(rng)
	case OpStab:
		if id, ok := loc.BotAt(front); ok {
			out.Kill = &id
		}
	case OpWait:
	case OpIfBot:
		if _, ok := loc.BotAt(front); !ok {
			r.pc = (r.pc + 1) % len(r.prog)
		}
	case OpTrap:
		return world.Outcome{}, fmt.Errorf("trap at pc %d", pc)
	}
	return out, nil
}

func (r *Runtime) State() ([]byte, error) {
	return cbor.Marshal(state{PC: r.pc, Ticks: r.ticks})
}

// Factory builds runtimes from firmware; it implements world.RuntimeFactory.
type Factory struct {
	MaxProgram int
}

func (f Factory) New(firmware, st []byte) (world.BotRuntime, error) {
	prog, err := Compile(firmware, f.MaxProgram)
	if err != nil {
		return nil, err
	}
	r := &Runtime{prog: prog}
	if len(st) == 0 {
		return r, nil
	}
	var s state
	if err := cbor.Unmarshal(st, &s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if s.PC < 0 || s.PC >= len(prog) {
		return nil, fmt.Errorf("state pc %d outside program of %d ops", s.PC, len(prog))
	}
	r.pc, r.ticks = s.PC, s.Ticks
	return r, nil
}
