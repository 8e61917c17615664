package grpc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"planetarena/server/internal/logging"
	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) factory(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() {}
}

func startServer(t *testing.T, feed *Feed, ticker *manualTicker, secret string) *grpclib.ClientConn {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpclib.NewServer(ServerOptions(secret)...)
	Register(server, NewService(feed, WithTickerFactory(ticker.factory), WithLogger(logging.NewTestLogger())))
	go server.Serve(listener)
	t.Cleanup(server.Stop)

	conn, err := grpclib.NewClient("passthrough:///bufnet",
		grpclib.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpclib.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, feed *Feed, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if feed.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, got %d", want, feed.Count())
}

func TestStreamSnapshotsDeliversLatestOnly(t *testing.T) {
	for _, compression := range []string{"gzip", "snappy", "identity"} {
		t.Run(compression, func(t *testing.T) {
			feed := NewFeed()
			ticker := &manualTicker{ch: make(chan time.Time)}
			conn := startServer(t, feed, ticker, "")

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			stream, err := NewSpectatorClient(conn, "").StreamSnapshots(ctx, &StreamRequest{Compression: compression})
			if err != nil {
				t.Fatalf("open stream: %v", err)
			}
			waitForSubscribers(t, feed, 1)

			//1.- Two snapshots before a tick: only the newer one is sent.
			feed.PublishSnapshot(state.Snapshot{Tick: 1})
			feed.PublishSnapshot(state.Snapshot{Tick: 2, Players: []state.PlayerView{{ID: "p", Position: vecmath.New(0, 5.5, 0), Health: 60}}})
			time.Sleep(20 * time.Millisecond)
			ticker.ch <- time.Now()

			snapshot, err := stream.Recv()
			if err != nil {
				t.Fatalf("recv: %v", err)
			}
			if snapshot.Tick != 2 || len(snapshot.Players) != 1 || snapshot.Players[0].Health != 60 {
				t.Fatalf("unexpected snapshot %+v", snapshot)
			}
		})
	}
}

func TestStreamSnapshotsRejectsUnknownCompression(t *testing.T) {
	feed := NewFeed()
	conn := startServer(t, feed, &manualTicker{ch: make(chan time.Time)}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stream, err := NewSpectatorClient(conn, "").StreamSnapshots(ctx, &StreamRequest{Compression: "lz4"})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestSharedSecretGuardsStream(t *testing.T) {
	feed := NewFeed()
	ticker := &manualTicker{ch: make(chan time.Time)}
	conn := startServer(t, feed, ticker, "hunter2")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	//1.- Without the secret the first receive fails.
	stream, err := NewSpectatorClient(conn, "").StreamSnapshots(ctx, nil)
	if err == nil {
		_, err = stream.Recv()
	}
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	//2.- With the secret the stream attaches.
	if _, err := NewSpectatorClient(conn, "hunter2").StreamSnapshots(ctx, nil); err != nil {
		t.Fatalf("open authorised stream: %v", err)
	}
	waitForSubscribers(t, feed, 1)
}

type stubServerStream struct {
	grpclib.ServerStream
	ctx context.Context
}

func (s *stubServerStream) Context() context.Context { return s.ctx }

func TestSharedSecretAcceptsBearerToken(t *testing.T) {
	interceptor := SharedSecretStreamInterceptor("hunter2")
	md := metadata.New(map[string]string{"authorization": "Bearer hunter2"})
	called := false
	err := interceptor(nil, &stubServerStream{ctx: metadata.NewIncomingContext(context.Background(), md)}, &grpclib.StreamServerInfo{}, func(any, grpclib.ServerStream) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected bearer token to pass, err=%v called=%v", err, called)
	}
	if ServerOptions("  ") != nil {
		t.Fatalf("expected no interceptor without a secret")
	}
}

func TestFrameCodecRoundTrip(t *testing.T) {
	codec := frameCodec{}
	data, err := codec.Marshal(&SnapshotFrame{Tick: 9, Encoding: "snappy", Payload: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var frame SnapshotFrame
	if err := codec.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Tick != 9 || frame.Encoding != "snappy" || len(frame.Payload) != 3 {
		t.Fatalf("unexpected frame %+v", frame)
	}
	if _, err := codec.Marshal("nope"); err == nil {
		t.Fatalf("expected unsupported type to fail")
	}
	if err := codec.Unmarshal(data[:len(data)-1], &frame); err == nil {
		t.Fatalf("expected truncated frame to fail")
	}
}

func TestFeedKeepsOnlyNewestSnapshot(t *testing.T) {
	feed := NewFeed()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := feed.Subscribe(ctx)
	feed.PublishSnapshot(state.Snapshot{Tick: 1})
	feed.PublishSnapshot(state.Snapshot{Tick: 2})
	if snapshot := <-ch; snapshot.Tick != 2 {
		t.Fatalf("expected newest snapshot, got tick %d", snapshot.Tick)
	}
	cancel()
	waitForSubscribers(t, feed, 0)
}

func TestFeedCloseEndsStreams(t *testing.T) {
	feed := NewFeed()
	conn := startServer(t, feed, &manualTicker{ch: make(chan time.Time)}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stream, err := NewSpectatorClient(conn, "").StreamSnapshots(ctx, nil)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	waitForSubscribers(t, feed, 1)

	feed.Close()
	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("expected io.EOF after feed close, got %v", err)
	}
	if ch, _ := feed.Subscribe(context.Background()); ch == nil {
		t.Fatalf("expected a closed channel")
	} else if _, ok := <-ch; ok {
		t.Fatalf("expected subscriptions after close to be closed")
	}
}
