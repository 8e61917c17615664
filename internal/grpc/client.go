package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"planetarena/server/internal/networking"
	"planetarena/server/internal/state"
)

// SpectatorClient opens snapshot streams on a connection.
type SpectatorClient struct {
	conn   grpclib.ClientConnInterface
	secret string
}

// NewSpectatorClient wraps conn. A non-empty secret is sent as the shared secret.
func NewSpectatorClient(conn grpclib.ClientConnInterface, secret string) *SpectatorClient {
	return &SpectatorClient{conn: conn, secret: secret}
}

// SnapshotStream yields decoded snapshots.
type SnapshotStream struct {
	stream grpclib.ClientStream
}

// StreamSnapshots starts streaming with the given request.
func (c *SpectatorClient) StreamSnapshots(ctx context.Context, req *StreamRequest) (*SnapshotStream, error) {
	if c.secret != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, SharedSecretMetadataKey, c.secret)
	}
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/"+streamSnapshotsName, grpclib.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	if req == nil {
		req = &StreamRequest{}
	}
	// io.EOF means the server already ended the call; Recv reports why.
	if err := stream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SnapshotStream{stream: stream}, nil
}

// Recv blocks for the next frame and decodes it.
func (s *SnapshotStream) Recv() (state.Snapshot, error) {
	frame := new(SnapshotFrame)
	if err := s.stream.RecvMsg(frame); err != nil {
		return state.Snapshot{}, err
	}
	compressor, err := CompressorByName(frame.Encoding)
	if err != nil {
		return state.Snapshot{}, err
	}
	payload, err := compressor.Decompress(frame.Payload)
	if err != nil {
		return state.Snapshot{}, err
	}
	snapshot, err := networking.UnmarshalSnapshot(payload)
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("frame %d: %w", frame.Tick, err)
	}
	return snapshot, nil
}
