package grpc

import (
	"context"
	"errors"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"planetarena/server/internal/logging"
	"planetarena/server/internal/networking"
	"planetarena/server/internal/state"
)

const (
	serviceName         = "planetarena.Spectator"
	streamSnapshotsName = "StreamSnapshots"
	defaultRateHz       = 20
	maxRateHz           = 60
)

// SnapshotSource is what the service streams from.
type SnapshotSource interface {
	Subscribe(ctx context.Context) (<-chan state.Snapshot, func())
}

// SpectatorServer is the server side of the spectator service.
type SpectatorServer interface {
	StreamSnapshots(req *StreamRequest, stream grpclib.ServerStream) error
}

// ServiceDesc describes the spectator service for grpc.Server.RegisterService.
var ServiceDesc = grpclib.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SpectatorServer)(nil),
	Streams: []grpclib.StreamDesc{{
		StreamName:    streamSnapshotsName,
		Handler:       streamSnapshotsHandler,
		ServerStreams: true,
	}},
	Metadata: "planetarena/spectator",
}

func streamSnapshotsHandler(srv any, stream grpclib.ServerStream) error {
	req := new(StreamRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(SpectatorServer).StreamSnapshots(req, stream)
}

// Option customises the Service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for throttled streaming.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithTickerFactory overrides the throttling ticker (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service streams compressed binary snapshots to spectators at a capped rate.
type Service struct {
	source    SnapshotSource
	newTicker tickerFactory
	logger    *logging.Logger
}

// NewService wires the service to a snapshot source.
func NewService(source SnapshotSource, opts ...Option) *Service {
	s := &Service{source: source, newTicker: defaultTickerFactory, logger: logging.L()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Register adds the service to a gRPC server.
func Register(server *grpclib.Server, service *Service) {
	server.RegisterService(&ServiceDesc, service)
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// StreamSnapshots sends the newest snapshot once per interval. Intermediate
// snapshots are skipped, never queued.
func (s *Service) StreamSnapshots(req *StreamRequest, stream grpclib.ServerStream) error {
	if s == nil || s.source == nil {
		return status.Error(codes.FailedPrecondition, "streaming unavailable")
	}
	compressor, err := CompressorByName(req.Compression)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	rate := req.RateHz
	if rate == 0 {
		rate = defaultRateHz
	}
	if rate > maxRateHz {
		rate = maxRateHz
	}

	ctx := stream.Context()
	snapshots, cancel := s.source.Subscribe(ctx)
	defer cancel()
	tickCh, stop := s.newTicker(time.Second / time.Duration(rate))
	defer stop()

	logger := logging.LoggerFromContext(ctx)
	if logger == logging.L() {
		logger = s.logger
	}
	logger.Info("spectator attached", logging.String("compression", compressor.Name()), logging.Int("rate_hz", int(rate)))
	defer logger.Info("spectator detached")

	var (
		pending *state.Snapshot
		sent    uint64
		started bool
	)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case snapshot, ok := <-snapshots:
			if !ok {
				return nil
			}
			pending = &snapshot
		case <-tickCh:
			if pending == nil || (started && pending.Tick <= sent) {
				continue
			}
			payload, err := compressor.Compress(networking.MarshalSnapshot(*pending))
			if err != nil {
				return status.Errorf(codes.Internal, "compress snapshot: %v", err)
			}
			frame := &SnapshotFrame{Tick: pending.Tick, Encoding: compressor.Name(), Payload: payload}
			if err := stream.SendMsg(frame); err != nil {
				return err
			}
			sent, started = pending.Tick, true
			pending = nil
		}
	}
}
