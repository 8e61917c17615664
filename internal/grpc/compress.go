package grpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
)

// ErrUnknownCompressor is returned for compression names the server does not offer.
var ErrUnknownCompressor = errors.New("unknown compressor")

// Compressor applies symmetric compression to snapshot payloads.
type Compressor interface {
	// Name is advertised in every frame so readers pick the right decoder.
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressorByName resolves a requested compression. Empty selects gzip.
func CompressorByName(name string) (Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gzip":
		return gzipCompressor{}, nil
	case "snappy":
		return snappyCompressor{}, nil
	case "identity", "none":
		return identityCompressor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompressor, name)
	}
}

type gzipCompressor struct{}

func (gzipCompressor) Name() string { return "gzip" }

func (gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("gzip decompress: empty payload")
	}
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer reader.Close()
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// snappyCompressor trades ratio for speed; spectators on a LAN prefer it.
type snappyCompressor struct{}

func (snappyCompressor) Name() string { return "snappy" }

func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}

type identityCompressor struct{}

func (identityCompressor) Name() string { return "identity" }

func (identityCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

func (identityCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
