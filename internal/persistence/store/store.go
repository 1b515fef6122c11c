package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Version is the schema version written by Write. Older files are migrated
// on Read; see migrations.go.
const Version = 4

var tracer = otel.Tracer("kartoffels.dev/internal/persistence/store")

var ErrUnsupportedVersion = errors.New("unsupported world file version")

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Name    string `json:"name"`
}

// Document is the typed body of a current-version world file.
type Document struct {
	Name   string   `cbor:"name"`
	Policy PolicyV4 `cbor:"policy"`
	Mode   *ModeV4  `cbor:"mode,omitempty"`
	Map    MapV4    `cbor:"map"`
	Bots   BotsV4   `cbor:"bots"`
}

type PolicyV4 struct {
	MaxAliveBots  int  `cbor:"max_alive_bots"`
	MaxQueuedBots int  `cbor:"max_queued_bots"`
	AutoRespawn   bool `cbor:"auto_respawn"`
	RespawnReset  bool `cbor:"respawn_reset"`
}

type ModeV4 struct {
	Type       string            `cbor:"type"`
	RoundTicks uint64            `cbor:"round_ticks,omitempty"`
	Elapsed    uint64            `cbor:"elapsed,omitempty"`
	Scores     map[string]uint64 `cbor:"scores,omitempty"`
}

type MapV4 struct {
	Size  [2]int `cbor:"size"`
	Tiles string `cbor:"tiles"`
}

type BotsV4 struct {
	Alive  []AliveBotV4  `cbor:"alive"`
	Dead   []DeadBotV4   `cbor:"dead"`
	Queued []QueuedBotV4 `cbor:"queued"`
}

type AliveBotV4 struct {
	ID       string `cbor:"id"`
	Pos      [2]int `cbor:"pos"`
	Dir      string `cbor:"dir"`
	Firmware []byte `cbor:"firmware"`
	State    []byte `cbor:"state,omitempty"`
}

type DeadBotV4 struct {
	ID       string  `cbor:"id"`
	Reason   string  `cbor:"reason"`
	Killer   *string `cbor:"killer"`
	Firmware []byte  `cbor:"firmware"`
	State    []byte  `cbor:"state,omitempty"`
}

type QueuedBotV4 struct {
	ID       string  `cbor:"id"`
	Firmware []byte  `cbor:"firmware"`
	Requeued bool    `cbor:"requeued"`
	Pos      *[2]int `cbor:"pos,omitempty"`
	State    []byte  `cbor:"state,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Write stores doc at path. The file is written next to path and renamed
// into place once it has been synced.
func Write(ctx context.Context, path string, h Header, doc Document) (err error) {
	_, span := tracer.Start(ctx, "store.Write")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("world.id", h.WorldID), attribute.Int("world.bots", len(doc.Bots.Alive)+len(doc.Bots.Dead)+len(doc.Bots.Queued)))

	h.Version = Version
	body, err := encMode.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("cbor encode: %w", err)
	}
	return writeRaw(path, h, body)
}

func writeRaw(path string, h Header, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(h)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(body); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadHeader returns the header without decoding the body.
func ReadHeader(path string) (Header, error) {
	h, _, err := readRaw(path)
	return h, err
}

// Read loads the file at path and migrates it to Version. The returned
// header carries the version the file was stored with.
func Read(ctx context.Context, path string) (h Header, doc Document, err error) {
	ctx, span := tracer.Start(ctx, "store.Read")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	h, body, err := readRaw(path)
	if err != nil {
		return h, doc, err
	}
	span.SetAttributes(attribute.String("world.id", h.WorldID), attribute.Int("store.version", h.Version))

	if h.Version < 1 || h.Version > Version {
		return h, doc, fmt.Errorf("%w: %d (current %d)", ErrUnsupportedVersion, h.Version, Version)
	}

	if h.Version < Version {
		var generic map[string]any
		if err := decMode.Unmarshal(body, &generic); err != nil {
			return h, doc, fmt.Errorf("cbor decode: %w", err)
		}
		generic, err = MigrateContext(ctx, h.Version, Version, generic)
		if err != nil {
			return h, doc, err
		}
		body, err = encMode.Marshal(generic)
		if err != nil {
			return h, doc, fmt.Errorf("cbor encode: %w", err)
		}
	}

	if err := decMode.Unmarshal(body, &doc); err != nil {
		return h, doc, fmt.Errorf("cbor decode: %w", err)
	}
	return h, doc, nil
}

func readRaw(path string) (Header, []byte, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return h, nil, fmt.Errorf("read body: %w", err)
	}
	return h, body, nil
}
