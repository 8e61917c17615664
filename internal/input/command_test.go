package input

import (
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestDecodeFullPayload(t *testing.T) {
	cmd, err := Decode([]byte(`{"rotate":-0.5,"move":1,"shoot":true}`), Neutral())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cmd.Rotate != -0.5 || cmd.Move != 1 || !cmd.Shoot || cmd.HasYaw {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestDecodeRetainsPreviousForMissingAndMistypedFields(t *testing.T) {
	prev := Command{Rotate: 0.25, Move: -1, Shoot: true}
	//1.- Only move is valid; rotate is a string and shoot is missing.
	cmd, err := Decode([]byte(`{"rotate":"left","move":0.5}`), prev)
	if err != nil {
		t.Fatalf("partial payload should not fail: %v", err)
	}
	if cmd.Rotate != 0.25 || cmd.Move != 0.5 || !cmd.Shoot {
		t.Fatalf("unexpected merge result %+v", cmd)
	}
	//2.- Explicit nulls behave like missing fields.
	prev = Command{Rotate: 1, Move: 1, Shoot: true}
	cmd, err = Decode([]byte(`{"rotate":null,"move":null,"shoot":null,"yaw":null}`), prev)
	if err != nil {
		t.Fatalf("null fields should not fail: %v", err)
	}
	if cmd != prev {
		t.Fatalf("null fields overwrote previous input: %+v", cmd)
	}
}

func TestDecodeClampsAxes(t *testing.T) {
	cmd, err := Decode([]byte(`{"rotate":4,"move":-9}`), Neutral())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cmd.Rotate != 1 || cmd.Move != -1 {
		t.Fatalf("axes not clamped: %+v", cmd)
	}
}

func TestDecodeMalformedKeepsPrevious(t *testing.T) {
	prev := Command{Rotate: 1, Move: 1}
	for _, payload := range []string{`not json`, `[1,2,3]`, `null`, ``} {
		cmd, err := Decode([]byte(payload), prev)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("payload %q: expected ErrMalformed, got %v", payload, err)
		}
		if cmd != prev {
			t.Fatalf("payload %q: previous command not retained: %+v", payload, cmd)
		}
	}
}

func TestDecodeOptionalYaw(t *testing.T) {
	cmd, err := Decode([]byte(`{"rotate":0,"move":0,"shoot":false,"yaw":1.5}`), Neutral())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !cmd.HasYaw || cmd.Yaw != 1.5 {
		t.Fatalf("yaw hint not captured: %+v", cmd)
	}
}

func TestDecodeMsgpackMergesLikeJSON(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]any{"move": 0.75, "shoot": "yes"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	prev := Command{Rotate: -1, Shoot: true}
	cmd, err := DecodeMsgpack(payload, prev)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cmd.Rotate != -1 || cmd.Move != 0.75 || !cmd.Shoot {
		t.Fatalf("unexpected merge result %+v", cmd)
	}
}

func TestDecodeMsgpackIgnoresNilFields(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]any{"rotate": nil, "move": nil, "shoot": nil, "yaw": nil})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	prev := Command{Rotate: 0.5, Move: -0.5, Shoot: true}
	cmd, err := DecodeMsgpack(payload, prev)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cmd != prev {
		t.Fatalf("nil fields overwrote previous input: %+v", cmd)
	}
}

func TestSlotsLastWriteWins(t *testing.T) {
	slots := NewSlots()
	slots.Store("a", Command{Move: 1})
	slots.Store("a", Command{Move: -1})
	if cmd, _ := slots.Latest("a"); cmd.Move != -1 {
		t.Fatalf("expected latest write to win, got %+v", cmd)
	}
	view := slots.Read()
	slots.Store("a", Command{Move: 0.5})
	if view["a"].Move != -1 {
		t.Fatalf("read view must not observe later writes")
	}
	slots.Forget("a")
	if _, ok := slots.Latest("a"); ok || slots.Len() != 0 {
		t.Fatalf("expected slot to be forgotten")
	}
}
