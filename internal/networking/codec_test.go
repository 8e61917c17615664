package networking

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

func TestParseEncoding(t *testing.T) {
	cases := map[string]Encoding{"": EncodingJSON, "json": EncodingJSON, " MsgPack ": EncodingMsgpack}
	for raw, want := range cases {
		got, err := ParseEncoding(raw)
		if err != nil || got != want {
			t.Fatalf("ParseEncoding(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
	if _, err := ParseEncoding("xml"); !errors.Is(err, ErrUnknownEncoding) {
		t.Fatalf("expected ErrUnknownEncoding, got %v", err)
	}
}

func TestGameStateJSONShape(t *testing.T) {
	//1.- Encode a snapshot the way every tick is broadcast.
	frame, err := Encode(EncodingJSON, EventGameState, GameStateFromSnapshot(sampleSnapshot()))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	//2.- Inspect the generic JSON tree so the field names are asserted literally.
	var decoded struct {
		Event string `json:"event"`
		Data  struct {
			Tick    uint64 `json:"tick"`
			Players map[string]struct {
				Position map[string]float64 `json:"position"`
				Rotation map[string]float64 `json:"rotation"`
				Health   int                `json:"health"`
			} `json:"players"`
			Bullets []struct {
				OwnerID string `json:"ownerId"`
			} `json:"bullets"`
			DeformationCraters []struct {
				Depth float64 `json:"depth"`
			} `json:"deformationCraters"`
		} `json:"data"`
	}
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Event != EventGameState || decoded.Data.Tick != 421 {
		t.Fatalf("unexpected header %+v", decoded)
	}
	alpha, ok := decoded.Data.Players["alpha"]
	if !ok || alpha.Health != 80 || alpha.Rotation["yaw"] != 1.25 || alpha.Position["y"] != 5.5 {
		t.Fatalf("unexpected alpha entry %+v", alpha)
	}
	if len(decoded.Data.Bullets) != 1 || decoded.Data.Bullets[0].OwnerID != "alpha" {
		t.Fatalf("unexpected bullets %+v", decoded.Data.Bullets)
	}
	if len(decoded.Data.DeformationCraters) != 1 || decoded.Data.DeformationCraters[0].Depth != 0.2 {
		t.Fatalf("unexpected craters %+v", decoded.Data.DeformationCraters)
	}
}

func TestEmptyCollectionsEncodeAsArrays(t *testing.T) {
	frame, err := Encode(EncodingJSON, EventGameState, GameStateFromSnapshot(state.Snapshot{Tick: 1}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(decoded.Data["bullets"]) != "[]" || string(decoded.Data["deformationCraters"]) != "[]" || string(decoded.Data["players"]) != "{}" {
		t.Fatalf("expected empty containers, got %s", frame)
	}
}

func TestGameStateRoundTripBothEncodings(t *testing.T) {
	for _, encoding := range []Encoding{EncodingJSON, EncodingMsgpack} {
		frame, err := Encode(encoding, EventGameState, GameStateFromSnapshot(sampleSnapshot()))
		if err != nil {
			t.Fatalf("%s encode: %v", encoding, err)
		}
		envelope, err := DecodeEnvelope(encoding, frame)
		if err != nil {
			t.Fatalf("%s envelope: %v", encoding, err)
		}
		if envelope.Event != EventGameState {
			t.Fatalf("%s: unexpected event %q", encoding, envelope.Event)
		}
		message, err := DecodePayload[GameState](encoding, envelope.Data)
		if err != nil {
			t.Fatalf("%s payload: %v", encoding, err)
		}
		snapshot := message.Snapshot()
		alpha, ok := snapshot.Player("alpha")
		if !ok || alpha.Position != vecmath.New(0, 5.5, 0) || alpha.Yaw != 1.25 {
			t.Fatalf("%s: unexpected alpha %+v", encoding, alpha)
		}
		if snapshot.Players[0].ID != "alpha" || snapshot.Players[1].ID != "bravo" {
			t.Fatalf("%s: players not ordered by id: %+v", encoding, snapshot.Players)
		}
	}
}

func TestDecodeEnvelopeMsgpackInput(t *testing.T) {
	//1.- Build a client-style msgpack frame carrying a partial input payload.
	frame, err := msgpack.Marshal(map[string]any{"event": EventPlayerInput, "data": map[string]any{"move": 1}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	envelope, err := DecodeEnvelope(EncodingMsgpack, frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Event != EventPlayerInput || len(envelope.Data) == 0 {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope(EncodingJSON, []byte("{not json")); err == nil {
		t.Fatalf("expected malformed JSON to fail")
	}
	if _, err := DecodeEnvelope(EncodingMsgpack, []byte{0xc1}); err == nil {
		t.Fatalf("expected malformed msgpack to fail")
	}
}
