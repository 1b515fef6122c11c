// Package encoding packs tile grids for the wire and for world files.
package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxRun bounds a single run so an encoded pair never needs more than five
// bytes for its length.
const MaxRun = 1 << 31

var ErrCellCount = errors.New("cell count mismatch")

// EncodeRuns writes cells as base64 over uvarint (value, run length) pairs.
func EncodeRuns(cells []uint32) string {
	var raw []byte
	for start := 0; start < len(cells); {
		end := start + 1
		for end < len(cells) && cells[end] == cells[start] && end-start < MaxRun {
			end++
		}
		raw = binary.AppendUvarint(raw, uint64(cells[start]))
		raw = binary.AppendUvarint(raw, uint64(end-start))
		start = end
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeRuns reverses EncodeRuns. The input must expand to exactly want
// cells; runs are checked against the remaining room before anything is
// written, so a corrupt length cannot grow the output.
func DecodeRuns(b64 string, want int) ([]uint32, error) {
	if want < 0 {
		return nil, fmt.Errorf("negative cell count %d", want)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, want)
	for off := 0; off < len(raw); {
		value, n := binary.Uvarint(raw[off:])
		if n <= 0 {
			return nil, fmt.Errorf("bad value varint at byte %d", off)
		}
		off += n
		run, n := binary.Uvarint(raw[off:])
		if n <= 0 {
			return nil, fmt.Errorf("bad run varint at byte %d", off)
		}
		off += n

		if value > 0xFFFFFFFF {
			return nil, fmt.Errorf("cell value %d does not fit 32 bits", value)
		}
		if run == 0 {
			return nil, fmt.Errorf("empty run at byte %d", off)
		}
		if room := uint64(want - len(out)); run > room {
			return nil, fmt.Errorf("%w: run of %d exceeds %d remaining cells", ErrCellCount, run, room)
		}
		for end := len(out) + int(run); len(out) < end; {
			out = append(out, uint32(value))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCellCount, len(out), want)
	}
	return out, nil
}
