package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"kartoffels.dev/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON round-trips v through encoding/json so the validator sees the
// same shapes a client would.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(asJSON(t, v)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(compile(t, "hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "tail",
		WorldID:         "arena",
		FollowBot:       "0000-0000-0000-002a",
		Events:          true,
	})

	validate(compile(t, "welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "6f1c2a1e-6a55-4c44-9d2b-2b8f6f7f6d11",
		WorldID:         "arena",
		Events:          true,
		WorldManifest: []protocol.WorldRef{
			{WorldID: "arena", Clock: "auto", TickRateHz: 64, Mode: "deathmatch", MaxAliveBots: 16, MaxQueuedBots: 16, Events: true},
		},
	})

	pos := [2]int{3, 4}
	validate(compile(t, "update.schema.json"), protocol.UpdateMsg{
		Type:            protocol.TypeUpdate,
		ProtocolVersion: protocol.Version,
		WorldID:         "arena",
		Tick:            12,
		Version:         13,
		Map:             protocol.MapObs{Size: [2]int{5, 5}, Encoding: "RLE", Tiles: "LgE="},
		Alive:           []protocol.AliveBotObs{{ID: "0000-0000-0000-002a", Pos: pos, Dir: ">", Age: 3}},
		Dead:            []protocol.DeadBotObs{{ID: "0000-0000-0000-002b", Reason: "stabbed by 0000-0000-0000-002a", Killer: "0000-0000-0000-002a"}},
		Queued:          []protocol.QueuedBotObs{{ID: "0000-0000-0000-002c", Place: 1, Requeued: true}},
		Scores:          map[string]uint64{"0000-0000-0000-002a": 1},
		Bot:             &protocol.BotObs{ID: "0000-0000-0000-002a", State: "alive", Pos: &pos, Dir: ">"},
	})

	// An empty world serializes its bot lists as null.
	validate(compile(t, "update.schema.json"), protocol.UpdateMsg{
		Type:            protocol.TypeUpdate,
		ProtocolVersion: protocol.Version,
		WorldID:         "arena",
		Map:             protocol.MapObs{Encoding: "RLE"},
	})

	validate(compile(t, "event.schema.json"), protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		WorldID:         "arena",
		Tick:            7,
		Event:           "bot_killed",
		Data:            map[string]any{"id": "0000-0000-0000-002b", "reason": "fell into the void"},
	})

	validate(compile(t, "error.schema.json"), protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            protocol.ErrTooManyBots,
		Message:         "too many queued bots",
	})

	validate(compile(t, "bot_created.schema.json"), protocol.BotCreatedMsg{
		Type:            protocol.TypeBotCreated,
		ProtocolVersion: protocol.Version,
		WorldID:         "arena",
		BotID:           "0000-0000-0000-002a",
	})
}

func TestSchemas_RejectMalformed(t *testing.T) {
	hello := compile(t, "hello.schema.json")
	var bad any
	_ = json.Unmarshal([]byte(`{"type":"HELLO","protocol_version":"1.0","follow_bot":"not-an-id"}`), &bad)
	if err := hello.Validate(bad); err == nil {
		t.Fatalf("expected bad bot id to be rejected")
	}

	update := compile(t, "update.schema.json")
	_ = json.Unmarshal([]byte(`{"type":"UPDATE","protocol_version":"1.0","world_id":"a","tick":0,"version":0,"paused":false,
	  "map":{"size":[1,1],"encoding":"RLE","tiles":""},
	  "alive":[{"id":"0000-0000-0000-0001","pos":[0,0],"dir":"north","age":0}],"dead":null,"queued":null}`), &bad)
	if err := update.Validate(bad); err == nil {
		t.Fatalf("expected bad dir to be rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"HELLO","protocol_version":"1.0","world_id":"x"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != protocol.TypeHello || m.ProtocolVersion != "1.0" {
		t.Fatalf("unexpected base: %+v", m)
	}
}
