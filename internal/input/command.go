package input

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// ErrMalformed reports an inbound payload that could not be read at all.
var ErrMalformed = errors.New("malformed input payload")

// Range defines the inclusive min/max for an analog channel.
type Range struct {
	Min float64
	Max float64
}

// AxisRange bounds both analog channels of a command.
var AxisRange = Range{Min: -1, Max: 1}

// Clamp bounds value to the range. NaN collapses to zero.
func (r Range) Clamp(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return math.Max(r.Min, math.Min(r.Max, value))
}

// Command is the instantaneous control intent of one player.
type Command struct {
	Rotate float64 `json:"rotate" msgpack:"rotate"`
	Move   float64 `json:"move" msgpack:"move"`
	Shoot  bool    `json:"shoot" msgpack:"shoot"`
	// Yaw is an optional client-side heading hint; the authoritative server ignores it.
	Yaw    float64 `json:"yaw,omitempty" msgpack:"yaw,omitempty"`
	HasYaw bool    `json:"-" msgpack:"-"`
}

// Neutral is the command every player starts with.
func Neutral() Command { return Command{} }

// Decode merges a JSON playerInput payload onto the previous command. Fields that
// are missing, null, mistyped or non-finite keep their previous values. ErrMalformed is
// returned when the payload is not an object; prev is returned unchanged in that case.
func Decode(payload []byte, prev Command) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return prev, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	next := prev
	//1.- Read each field on its own so one bad channel does not discard the others.
	if raw, ok := fields["rotate"]; ok && !jsonNull(raw) {
		var value float64
		if json.Unmarshal(raw, &value) == nil && isFinite(value) {
			next.Rotate = AxisRange.Clamp(value)
		}
	}
	if raw, ok := fields["move"]; ok && !jsonNull(raw) {
		var value float64
		if json.Unmarshal(raw, &value) == nil && isFinite(value) {
			next.Move = AxisRange.Clamp(value)
		}
	}
	if raw, ok := fields["shoot"]; ok && !jsonNull(raw) {
		var value bool
		if json.Unmarshal(raw, &value) == nil {
			next.Shoot = value
		}
	}
	if raw, ok := fields["yaw"]; ok && !jsonNull(raw) {
		var value float64
		if json.Unmarshal(raw, &value) == nil && isFinite(value) {
			next.Yaw, next.HasYaw = value, true
		}
	}
	return next, nil
}

// DecodeMsgpack is the binary counterpart of Decode with identical merge rules.
func DecodeMsgpack(payload []byte, prev Command) (Command, error) {
	var fields map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(payload, &fields); err != nil || fields == nil {
		return prev, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	next := prev
	if raw, ok := fields["rotate"]; ok && !msgpackNil(raw) {
		var value float64
		if msgpack.Unmarshal(raw, &value) == nil && isFinite(value) {
			next.Rotate = AxisRange.Clamp(value)
		}
	}
	if raw, ok := fields["move"]; ok && !msgpackNil(raw) {
		var value float64
		if msgpack.Unmarshal(raw, &value) == nil && isFinite(value) {
			next.Move = AxisRange.Clamp(value)
		}
	}
	if raw, ok := fields["shoot"]; ok && !msgpackNil(raw) {
		var value bool
		if msgpack.Unmarshal(raw, &value) == nil {
			next.Shoot = value
		}
	}
	if raw, ok := fields["yaw"]; ok && !msgpackNil(raw) {
		var value float64
		if msgpack.Unmarshal(raw, &value) == nil && isFinite(value) {
			next.Yaw, next.HasYaw = value, true
		}
	}
	return next, nil
}

// Decoding null into a fresh value succeeds and yields zero, so null counts as missing.
func jsonNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func msgpackNil(raw msgpack.RawMessage) bool {
	return len(raw) == 1 && raw[0] == msgpcode.Nil
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
