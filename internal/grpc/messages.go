package grpc

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// codecName is the content subtype spectator calls use.
const codecName = "arena-frame"

// StreamRequest opens a snapshot stream.
type StreamRequest struct {
	// RateHz caps frames per second; zero selects the default.
	RateHz uint32
	// Compression names the payload compressor; empty selects gzip.
	Compression string
}

// SnapshotFrame carries one compressed binary snapshot.
type SnapshotFrame struct {
	Tick     uint64
	Encoding string
	Payload  []byte
}

const (
	requestRateHz      protowire.Number = 1
	requestCompression protowire.Number = 2

	frameTick     protowire.Number = 1
	frameEncoding protowire.Number = 2
	framePayload  protowire.Number = 3
)

var errFrameFormat = errors.New("invalid frame")

// frameCodec serialises the two stream messages with protobuf wire encoding so
// no generated code is needed.
type frameCodec struct{}

func init() {
	encoding.RegisterCodec(frameCodec{})
}

func (frameCodec) Name() string { return codecName }

func (frameCodec) Marshal(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *StreamRequest:
		var buf []byte
		if msg.RateHz != 0 {
			buf = protowire.AppendTag(buf, requestRateHz, protowire.VarintType)
			buf = protowire.AppendVarint(buf, uint64(msg.RateHz))
		}
		if msg.Compression != "" {
			buf = protowire.AppendTag(buf, requestCompression, protowire.BytesType)
			buf = protowire.AppendString(buf, msg.Compression)
		}
		return buf, nil
	case *SnapshotFrame:
		buf := make([]byte, 0, len(msg.Payload)+32)
		buf = protowire.AppendTag(buf, frameTick, protowire.VarintType)
		buf = protowire.AppendVarint(buf, msg.Tick)
		buf = protowire.AppendTag(buf, frameEncoding, protowire.BytesType)
		buf = protowire.AppendString(buf, msg.Encoding)
		buf = protowire.AppendTag(buf, framePayload, protowire.BytesType)
		buf = protowire.AppendBytes(buf, msg.Payload)
		return buf, nil
	default:
		return nil, fmt.Errorf("%s codec cannot marshal %T", codecName, v)
	}
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	switch msg := v.(type) {
	case *StreamRequest:
		*msg = StreamRequest{}
		return walk(data, func(num protowire.Number, value []byte, scalar uint64) {
			switch num {
			case requestRateHz:
				msg.RateHz = uint32(scalar)
			case requestCompression:
				msg.Compression = string(value)
			}
		})
	case *SnapshotFrame:
		*msg = SnapshotFrame{}
		return walk(data, func(num protowire.Number, value []byte, scalar uint64) {
			switch num {
			case frameTick:
				msg.Tick = scalar
			case frameEncoding:
				msg.Encoding = string(value)
			case framePayload:
				msg.Payload = append([]byte(nil), value...)
			}
		})
	default:
		return fmt.Errorf("%s codec cannot unmarshal into %T", codecName, v)
	}
}

func walk(data []byte, visit func(num protowire.Number, value []byte, scalar uint64)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", errFrameFormat, protowire.ParseError(n))
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			value, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", errFrameFormat, protowire.ParseError(n))
			}
			visit(num, nil, value)
			data = data[n:]
		case protowire.BytesType:
			value, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", errFrameFormat, protowire.ParseError(n))
			}
			visit(num, value, 0)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: %v", errFrameFormat, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}
