package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"
)

func pairs(vals ...uint64) string {
	var raw []byte
	for _, v := range vals {
		raw = binary.AppendUvarint(raw, v)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestRuns_RoundTrip(t *testing.T) {
	in := []uint32{1, 1, 1, 2, 2, 3}
	for i := 0; i < 50; i++ {
		in = append(in, 0x2e000000)
	}
	in = append(in, 9, 10, 10, 10)

	out, err := DecodeRuns(EncodeRuns(in), len(in))
	if err != nil {
		t.Fatalf("DecodeRuns: %v", err)
	}
	if !slices.Equal(in, out) {
		t.Fatalf("got %v want %v", out, in)
	}
}

func TestRuns_Empty(t *testing.T) {
	out, err := DecodeRuns(EncodeRuns(nil), 0)
	if err != nil || len(out) != 0 {
		t.Fatalf("out=%v err=%v", out, err)
	}
}

func TestDecodeRuns_CountMustMatch(t *testing.T) {
	enc := EncodeRuns([]uint32{7, 7, 7, 7})
	for _, want := range []int{0, 3, 5} {
		if _, err := DecodeRuns(enc, want); !errors.Is(err, ErrCellCount) {
			t.Fatalf("want=%d: expected ErrCellCount, got %v", want, err)
		}
	}
}

func TestDecodeRuns_HugeRunRejected(t *testing.T) {
	// A run near 2^64 must not wrap around the remaining-room check.
	for _, want := range []int{4, 0} {
		_, err := DecodeRuns(pairs(1, 1, 1, math.MaxUint64), want)
		if !errors.Is(err, ErrCellCount) {
			t.Fatalf("want=%d: expected ErrCellCount, got %v", want, err)
		}
	}
}

func TestDecodeRuns_Malformed(t *testing.T) {
	cases := map[string]string{
		"not base64": "%%%",
		"dangling":   base64.StdEncoding.EncodeToString([]byte{0x05}),
		"empty run":  pairs(1, 0),
		"wide value": pairs(1<<33, 1),
		"truncated":  base64.StdEncoding.EncodeToString([]byte{0x80}),
	}
	for name, in := range cases {
		if _, err := DecodeRuns(in, 1); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
