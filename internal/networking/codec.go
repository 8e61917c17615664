package networking

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects how a session's frames are serialised.
type Encoding uint8

const (
	// EncodingJSON sends text frames.
	EncodingJSON Encoding = iota
	// EncodingMsgpack sends binary frames.
	EncodingMsgpack
)

// ErrUnknownEncoding is returned by ParseEncoding for unsupported names.
var ErrUnknownEncoding = errors.New("unknown encoding")

// ParseEncoding maps a query parameter onto an encoding. Empty selects JSON.
func ParseEncoding(raw string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return EncodingJSON, nil
	case "msgpack":
		return EncodingMsgpack, nil
	default:
		return EncodingJSON, fmt.Errorf("%w: %q", ErrUnknownEncoding, raw)
	}
}

// String returns the query parameter name of the encoding.
func (e Encoding) String() string {
	if e == EncodingMsgpack {
		return "msgpack"
	}
	return "json"
}

// Binary reports whether frames of this encoding travel as binary messages.
func (e Encoding) Binary() bool { return e == EncodingMsgpack }

// Envelope wraps every outbound message.
type Envelope struct {
	Event string `json:"event" msgpack:"event"`
	Data  any    `json:"data" msgpack:"data"`
}

// InboundEnvelope is the receiving side of Envelope with the payload left raw.
type InboundEnvelope struct {
	Event string
	Data  []byte
}

type jsonInbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type msgpackInbound struct {
	Event string             `msgpack:"event"`
	Data  msgpack.RawMessage `msgpack:"data"`
}

// Encode serialises one event.
func Encode(encoding Encoding, event string, payload any) ([]byte, error) {
	envelope := Envelope{Event: event, Data: payload}
	if encoding == EncodingMsgpack {
		return msgpack.Marshal(envelope)
	}
	return json.Marshal(envelope)
}

// DecodeEnvelope splits a frame into its event name and raw payload.
func DecodeEnvelope(encoding Encoding, frame []byte) (InboundEnvelope, error) {
	if encoding == EncodingMsgpack {
		var inbound msgpackInbound
		if err := msgpack.Unmarshal(frame, &inbound); err != nil {
			return InboundEnvelope{}, fmt.Errorf("decode envelope: %w", err)
		}
		return InboundEnvelope{Event: inbound.Event, Data: inbound.Data}, nil
	}
	var inbound jsonInbound
	if err := json.Unmarshal(frame, &inbound); err != nil {
		return InboundEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return InboundEnvelope{Event: inbound.Event, Data: inbound.Data}, nil
}

// DecodePayload decodes an envelope payload into T.
func DecodePayload[T any](encoding Encoding, data []byte) (T, error) {
	var value T
	var err error
	if encoding == EncodingMsgpack {
		err = msgpack.Unmarshal(data, &value)
	} else {
		err = json.Unmarshal(data, &value)
	}
	if err != nil {
		return value, fmt.Errorf("decode payload: %w", err)
	}
	return value, nil
}
