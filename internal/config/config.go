package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultAddr is the HTTP address serving the websocket endpoint and static assets.
	DefaultAddr = ":3000"
	// DefaultPingInterval controls the keepalive cadence for websocket sessions.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound websocket frame size.
	DefaultMaxPayloadBytes int64 = 64 << 10
	// DefaultMaxClients bounds concurrent sessions. Zero disables the limit.
	DefaultMaxClients = 64
	// DefaultTickHz is the simulation rate.
	DefaultTickHz = 60
	// DefaultInputRate is the number of input frames a session may send per second.
	DefaultInputRate = 60
	// DefaultStaticDir holds the browser client bundle.
	DefaultStaticDir = "public"
	// DefaultEnvFile is read before the environment when present.
	DefaultEnvFile = ".env"
	// DefaultReplayStride records every Nth tick; 6 gives 10 frames per second at 60 Hz.
	DefaultReplayStride = 6
	// DefaultReplayMaxMatches bounds the number of replay bundles kept on disk.
	DefaultReplayMaxMatches = 20
	// DefaultReplayMaxAge removes bundles older than this.
	DefaultReplayMaxAge = 72 * time.Hour

	// DefaultLogLevel controls verbosity for server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "arena.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the arena server.
type Config struct {
	Address          string
	AllowedOrigins   []string
	MaxPayloadBytes  int64
	PingInterval     time.Duration
	MaxClients       int
	TLSCertPath      string
	TLSKeyPath       string
	TickHz           int
	MaxProjectiles   int
	MaxCraters       int
	InputRate        int
	ClientBandwidth  float64
	StaticDir        string
	JWTSecret        string
	GRPCAddr         string
	GRPCSharedSecret string
	ReplayDir        string
	ReplayStride     int
	ReplayMaxMatches int
	ReplayMaxAge     time.Duration
	AdminToken       string
	SentryDSN        string
	StatsViewAddr    string
	Logging          LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load seeds the environment from ARENA_ENV_FILE (default .env) when the file
// exists, then reads every ARENA_ variable. All invalid overrides are reported
// together.
func Load() (*Config, error) {
	envFile := getString("ARENA_ENV_FILE", DefaultEnvFile)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		Address:          getString("ARENA_ADDR", DefaultAddr),
		AllowedOrigins:   parseList(os.Getenv("ARENA_ALLOWED_ORIGINS")),
		TLSCertPath:      strings.TrimSpace(os.Getenv("ARENA_TLS_CERT")),
		TLSKeyPath:       strings.TrimSpace(os.Getenv("ARENA_TLS_KEY")),
		StaticDir:        getString("ARENA_STATIC_DIR", DefaultStaticDir),
		JWTSecret:        strings.TrimSpace(os.Getenv("ARENA_JWT_SECRET")),
		GRPCAddr:         strings.TrimSpace(os.Getenv("ARENA_GRPC_ADDR")),
		GRPCSharedSecret: strings.TrimSpace(os.Getenv("ARENA_GRPC_SHARED_SECRET")),
		ReplayDir:        strings.TrimSpace(os.Getenv("ARENA_REPLAY_DIR")),
		AdminToken:       strings.TrimSpace(os.Getenv("ARENA_ADMIN_TOKEN")),
		SentryDSN:        strings.TrimSpace(os.Getenv("ARENA_SENTRY_DSN")),
		StatsViewAddr:    strings.TrimSpace(os.Getenv("ARENA_STATSVIEW_ADDR")),
		Logging: LoggingConfig{
			Level: getString("ARENA_LOG_LEVEL", DefaultLogLevel),
			Path:  getString("ARENA_LOG_PATH", DefaultLogPath),
		},
	}

	p := &parser{}
	cfg.MaxPayloadBytes = p.int64("ARENA_MAX_PAYLOAD_BYTES", DefaultMaxPayloadBytes, 1)
	cfg.PingInterval = p.duration("ARENA_PING_INTERVAL", DefaultPingInterval)
	cfg.MaxClients = p.int("ARENA_MAX_CLIENTS", DefaultMaxClients, 0)
	cfg.TickHz = p.int("ARENA_TICK_HZ", DefaultTickHz, 1)
	cfg.MaxProjectiles = p.int("ARENA_MAX_PROJECTILES", 0, 0)
	cfg.MaxCraters = p.int("ARENA_MAX_CRATERS", 0, 0)
	cfg.InputRate = p.int("ARENA_INPUT_RATE", DefaultInputRate, 1)
	cfg.ClientBandwidth = p.float("ARENA_CLIENT_BANDWIDTH", 0)
	cfg.ReplayStride = p.int("ARENA_REPLAY_STRIDE", DefaultReplayStride, 1)
	cfg.ReplayMaxMatches = p.int("ARENA_REPLAY_MAX_MATCHES", DefaultReplayMaxMatches, 0)
	cfg.ReplayMaxAge = p.duration("ARENA_REPLAY_MAX_AGE", DefaultReplayMaxAge)
	cfg.Logging.MaxSizeMB = p.int("ARENA_LOG_MAX_SIZE_MB", DefaultLogMaxSizeMB, 1)
	cfg.Logging.MaxBackups = p.int("ARENA_LOG_MAX_BACKUPS", DefaultLogMaxBackups, 0)
	cfg.Logging.MaxAgeDays = p.int("ARENA_LOG_MAX_AGE_DAYS", DefaultLogMaxAgeDays, 0)
	cfg.Logging.Compress = p.bool("ARENA_LOG_COMPRESS", DefaultLogCompress)

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		p.problems = append(p.problems, "ARENA_TLS_CERT and ARENA_TLS_KEY must be provided together")
	}
	if cfg.GRPCSharedSecret != "" && cfg.GRPCAddr == "" {
		p.problems = append(p.problems, "ARENA_GRPC_SHARED_SECRET requires ARENA_GRPC_ADDR")
	}

	if len(p.problems) > 0 {
		return nil, errors.New(strings.Join(p.problems, "; "))
	}
	return cfg, nil
}

// parser collects every invalid override instead of stopping at the first.
type parser struct {
	problems []string
}

func (p *parser) int(key string, fallback, min int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < min {
		p.problems = append(p.problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, min, raw))
		return fallback
	}
	return value
}

func (p *parser) int64(key string, fallback, min int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < min {
		p.problems = append(p.problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, min, raw))
		return fallback
	}
	return value
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a non-negative number, got %q", key, raw))
		return fallback
	}
	return value
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return fallback
	}
	return value
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return fallback
	}
	return value
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
