package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"planetarena/server/internal/bots"
	"planetarena/server/internal/client"
	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/networking"
)

func main() {
	serverURL := flag.String("url", "ws://localhost:3000/ws", "Arena websocket endpoint")
	encodingName := flag.String("encoding", "json", "Wire encoding: json or msgpack")
	token := flag.String("token", os.Getenv("ARENA_TOKEN"), "Bearer token when the server requires auth")
	count := flag.Int("bots", 1, "Number of headless tanks to run")
	population := flag.Int("population", 0, "Keep humans plus bots at this total instead of a fixed -bots count")
	statsURL := flag.String("stats", "", "Stats endpoint polled with -population (derived from -url when empty)")
	poll := flag.Duration("poll", 2*time.Second, "Population poll interval")
	scaleAddr := flag.String("scale-addr", "", "Serve POST /scale so a remote controller can size this fleet")
	duration := flag.Duration("duration", 0, "Stop after this long; zero runs until interrupted")
	levelName := flag.String("log-level", "info", "Log level")
	flag.Parse()

	level, err := logging.ParseLevel(*levelName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := logging.NewWriterLogger(os.Stderr, level)
	logging.ReplaceGlobals(logger)

	encoding, err := networking.ParseEncoding(*encodingName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := run(ctx, options{
		url:        *serverURL,
		encoding:   encoding,
		token:      *token,
		bots:       *count,
		population: *population,
		statsURL:   *statsURL,
		poll:       *poll,
		scaleAddr:  *scaleAddr,
	}, logger); err != nil {
		logger.Error("arena client failed", logging.Error(err))
		os.Exit(2)
	}
}

type options struct {
	url        string
	encoding   networking.Encoding
	token      string
	bots       int
	population int
	statsURL   string
	poll       time.Duration
	scaleAddr  string
}

func run(ctx context.Context, opts options, logger *logging.Logger) error {
	tuning := gameplay.DefaultTuning()
	fleet := bots.NewFleet(ctx, func(index int) bots.Runner {
		return client.NewRunner(client.Config{
			URL:        opts.url,
			Encoding:   opts.encoding,
			Token:      opts.token,
			Tuning:     tuning,
			Controller: bots.NewHunter(tuning),
			Logger:     logger.With(logging.Int("bot", index)),
		})
	}, logger)
	defer fleet.Stop()

	if opts.scaleAddr != "" {
		//1.- Remote controllers size this fleet through HTTPLauncher.
		mux := http.NewServeMux()
		mux.Handle("/scale", bots.ScaleHandler(fleet))
		server := &http.Server{Addr: opts.scaleAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("scale endpoint failed", logging.Error(err))
			}
		}()
		defer server.Close()
		logger.Info("scale endpoint listening", logging.String("address", opts.scaleAddr))
	}

	if opts.population > 0 {
		//2.- Fill the arena up to the population, yielding seats to humans.
		endpoint := opts.statsURL
		if endpoint == "" {
			derived, err := statsEndpoint(opts.url)
			if err != nil {
				return err
			}
			endpoint = derived
		}
		controller := bots.NewController(bots.ControllerConfig{TargetPopulation: opts.population, Launcher: fleet, Logger: logger})
		logger.Info("population control enabled", logging.Int("population", opts.population), logging.String("stats", endpoint))
		controller.Watch(ctx, opts.poll, bots.StatsClients(endpoint, nil))
		return nil
	}

	if opts.bots > 0 {
		if _, err := fleet.Scale(ctx, opts.bots); err != nil {
			return err
		}
		logger.Info("bots launched", logging.Int("bots", opts.bots), logging.String("url", opts.url))
	}
	<-ctx.Done()
	logger.Info("arena client stopping", logging.Int("running", fleet.Running()))
	return nil
}

// statsEndpoint maps the websocket URL onto the server's /api/stats document.
func statsEndpoint(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "http":
		parsed.Scheme = "http"
	case "wss", "https":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = "/api/stats"
	parsed.RawQuery = ""
	return parsed.String(), nil
}
