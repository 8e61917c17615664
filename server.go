package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	grpclib "google.golang.org/grpc"

	"planetarena/server/internal/config"
	"planetarena/server/internal/events"
	"planetarena/server/internal/gameplay"
	grpcstream "planetarena/server/internal/grpc"
	httpapi "planetarena/server/internal/http"
	"planetarena/server/internal/input"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/networking"
	"planetarena/server/internal/replay"
	"planetarena/server/internal/simulation"
	"planetarena/server/internal/telemetry"
	"planetarena/server/internal/transport"
)

const (
	websocketPath        = "/ws"
	shutdownTimeout      = 10 * time.Second
	replaySweepInterval  = 10 * time.Minute
	replayRollsPerMinute = 3
)

var (
	errNotReady     = errors.New("simulation not started")
	errShuttingDown = errors.New("shutting down")
)

// server owns every long-lived component of the arena process.
type server struct {
	cfg     *config.Config
	logger  *logging.Logger
	tuning  gameplay.Tuning
	started time.Time
	state   atomic.Pointer[error]

	slots       *input.Slots
	gate        *input.Gate
	broadcaster *networking.Broadcaster
	killFeed    *events.Stream
	world       *simulation.World
	loop        *simulation.Loop
	hub         *transport.Hub
	feed        *grpcstream.Feed
	recorder    *replay.Recorder
	cleaner     *replay.Cleaner
	grpcServer  *grpclib.Server
}

// newServer builds the component graph from cfg without starting anything.
func newServer(cfg *config.Config, logger *logging.Logger) (*server, error) {
	if logger == nil {
		logger = logging.L()
	}
	tuning := gameplay.DefaultTuning()
	if cfg.MaxProjectiles > 0 {
		tuning.MaxProjectiles = cfg.MaxProjectiles
	}
	if cfg.MaxCraters > 0 {
		tuning.MaxCraters = cfg.MaxCraters
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("arena tuning: %w", err)
	}

	var authenticator transport.Authenticator = transport.AllowAll{}
	if cfg.JWTSecret != "" {
		jwtAuth, err := transport.NewJWTAuthenticator(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		authenticator = jwtAuth
	}

	s := &server{cfg: cfg, logger: logger, tuning: tuning, started: time.Now()}
	s.setState(errNotReady)

	s.slots = input.NewSlots()
	s.gate = input.NewGate(input.Config{Limit: cfg.InputRate, Window: time.Second, MaxStrikes: input.DefaultConfig.MaxStrikes}, logger.With(logging.String("component", "input")))
	s.broadcaster = networking.NewBroadcaster(
		logger.With(logging.String("component", "broadcast")),
		networking.WithBandwidthRegulator(networking.NewBandwidthRegulator(cfg.ClientBandwidth, nil)),
	)

	s.killFeed = events.NewStream(events.Config{})

	sinks := []simulation.WorldOption{simulation.WithSink(s.broadcaster), simulation.WithSink(s.killFeed)}
	if cfg.GRPCAddr != "" {
		s.feed = grpcstream.NewFeed()
		sinks = append(sinks, simulation.WithSink(s.feed))
	}
	if cfg.ReplayDir != "" {
		recorder, err := replay.NewRecorder(cfg.ReplayDir, "arena",
			replay.Header{TickHz: cfg.TickHz, Tuning: tuning},
			replay.WithStride(cfg.ReplayStride),
			replay.WithRecorderLogger(logger.With(logging.String("component", "replay"))),
		)
		if err != nil {
			return nil, err
		}
		s.recorder = recorder
		s.cleaner = replay.NewCleaner(cfg.ReplayDir,
			replay.RetentionPolicy{MaxMatches: cfg.ReplayMaxMatches, MaxAge: cfg.ReplayMaxAge},
			func() string { return recorder.Stats().Directory },
			logger.With(logging.String("component", "replay")),
		)
		sinks = append(sinks, simulation.WithSink(recorder))
	}

	budget := time.Second / time.Duration(cfg.TickHz)
	s.world = simulation.NewWorld(tuning, s.slots, append(sinks,
		simulation.WithLogger(logger.With(logging.String("component", "world"))),
		simulation.WithMonitor(simulation.NewTickMonitor(budget)),
	)...)
	s.loop = simulation.NewLoop(float64(cfg.TickHz), s.world.Step,
		simulation.WithPanicHandler(telemetry.PanicReporter(logger, map[string]string{"component": "tick"})),
	)

	s.hub = transport.NewHub(s.world, s.slots, s.gate, s.broadcaster, logger.With(logging.String("component", "hub")), transport.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		PingInterval:    cfg.PingInterval,
		MaxClients:      cfg.MaxClients,
		Authenticator:   authenticator,
		Welcome: networking.Welcome{
			TickHz:       float64(cfg.TickHz),
			PlanetRadius: tuning.PlanetRadius,
			TankHeight:   tuning.TankHeight,
		},
		PanicHandler: telemetry.PanicReporter(logger, map[string]string{"component": "session"}),
	})

	if s.feed != nil {
		s.grpcServer = grpclib.NewServer(grpcstream.ServerOptions(cfg.GRPCSharedSecret)...)
		grpcstream.Register(s.grpcServer, grpcstream.NewService(s.feed,
			grpcstream.WithLogger(logger.With(logging.String("component", "spectator"))),
		))
	}
	return s, nil
}

func (s *server) setState(err error) { s.state.Store(&err) }

// Clients reports connected websocket sessions.
func (s *server) Clients() int { return s.hub.Count() }

// StartupError is nil only while the server is serving.
func (s *server) StartupError() error { return *s.state.Load() }

// Uptime reports time since construction.
func (s *server) Uptime() time.Duration { return time.Since(s.started) }

// routes assembles the HTTP surface.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(websocketPath, s.hub)
	mux.HandleFunc("/api/controls", controlDocsHandler)

	opts := httpapi.Options{
		Logger:      s.logger.With(logging.String("component", "http")),
		Readiness:   s,
		World:       s.world.Stats,
		Snapshots:   s.broadcaster.Metrics(),
		Bandwidth:   s.broadcaster.Bandwidth,
		InputDrops:  s.gate.Metrics,
		Events:      s.killFeed.Since,
		Scoreboard:  s.killFeed.Scoreboard,
		AdminToken:  s.cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(time.Minute, replayRollsPerMinute, nil),
	}
	if s.feed != nil {
		opts.Spectators = s.feed.Count
	}
	if s.recorder != nil {
		opts.Replay = httpapi.ReplayRollerFunc(func(context.Context) (string, error) { return s.recorder.Roll() })
		opts.ReplayStats = s.recorder.Stats
		opts.StorageStats = s.cleaner.Stats
	}
	httpapi.NewHandlerSet(opts).Register(mux)

	if info, err := os.Stat(s.cfg.StaticDir); err == nil && info.IsDir() {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	} else {
		s.logger.Warn("static directory unavailable", logging.String("path", s.cfg.StaticDir))
	}
	return logging.HTTPTraceMiddleware(s.logger)(mux)
}

// run listens on the configured addresses and serves until ctx ends.
func (s *server) run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}
	var grpcListener net.Listener
	if s.grpcServer != nil {
		grpcListener, err = net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			listener.Close()
			return fmt.Errorf("listen grpc %s: %w", s.cfg.GRPCAddr, err)
		}
	}
	return s.serve(ctx, listener, grpcListener)
}

// serve runs every component on the supplied listeners and shuts them down in
// dependency order once ctx ends or the HTTP server fails.
func (s *server) serve(ctx context.Context, listener, grpcListener net.Listener) error {
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	s.loop.Start(loopCtx)
	if s.cleaner != nil {
		go s.cleaner.Run(loopCtx, replaySweepInterval)
	}

	errCh := make(chan error, 2)
	if s.grpcServer != nil && grpcListener != nil {
		go func() {
			if err := s.grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpclib.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
		s.logger.Info("spectator stream listening", logging.String("address", grpcListener.Addr().String()))
	}

	tlsEnabled := s.cfg.TLSCertPath != ""
	httpServer := &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		var err error
		if tlsEnabled {
			err = httpServer.ServeTLS(listener, s.cfg.TLSCertPath, s.cfg.TLSKeyPath)
		} else {
			err = httpServer.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.setState(nil)
	address := listener.Addr().String()
	s.logger.Info("arena listening",
		logging.String("url", listenerURL(address, tlsEnabled)),
		logging.String("websocket", websocketURL(address, tlsEnabled)),
		logging.Int("tick_hz", s.cfg.TickHz),
	)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		s.logger.Error("server failed", logging.Error(serveErr))
	}
	s.setState(errShuttingDown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.shutdown(shutdownCtx, httpServer)
	return serveErr
}

func (s *server) shutdown(ctx context.Context, httpServer *http.Server) {
	//1.- Stop accepting connections, then close the hijacked websocket sessions.
	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		s.logger.Warn("session shutdown incomplete", logging.Error(err))
	}
	//2.- No tick may publish after the sinks below are closed.
	s.loop.Stop()
	if s.grpcServer != nil {
		s.feed.Close()
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.grpcServer.Stop()
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.Warn("replay close failed", logging.Error(err))
		}
	}
	s.logger.Info("arena stopped", logging.Uint64("ticks", s.world.Tick()))
}
