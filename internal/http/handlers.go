package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"planetarena/server/internal/events"
	"planetarena/server/internal/input"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/networking"
	"planetarena/server/internal/replay"
	"planetarena/server/internal/simulation"
)

// ReadinessProvider exposes server state required for readiness checks.
type ReadinessProvider interface {
	Clients() int
	StartupError() error
	Uptime() time.Duration
}

// ReplayRoller closes the current replay bundle and returns its location.
type ReplayRoller interface {
	RollReplay(ctx context.Context) (string, error)
}

// ReplayRollerFunc adapts a function into a ReplayRoller.
type ReplayRollerFunc func(ctx context.Context) (string, error)

// RollReplay implements ReplayRoller.
func (f ReplayRollerFunc) RollReplay(ctx context.Context) (string, error) { return f(ctx) }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet. Nil sources are omitted from the output.
type Options struct {
	Logger       *logging.Logger
	Readiness    ReadinessProvider
	World        func() simulation.Stats
	Snapshots    *networking.SnapshotMetrics
	Bandwidth    func() map[string]networking.BandwidthUsage
	InputDrops   func() map[string]input.DropCounters
	Spectators   func() int
	Replay       ReplayRoller
	ReplayStats  func() replay.Stats
	StorageStats func() replay.StorageStats
	Events       func(after uint64, limit int) (events.Page, error)
	Scoreboard   func() events.Scoreboard
	AdminToken   string
	RateLimiter  RateLimiter
	TimeSource   func() time.Time
}

// HandlerSet bundles the operational endpoints.
type HandlerSet struct {
	logger       *logging.Logger
	readiness    ReadinessProvider
	world        func() simulation.Stats
	snapshots    *networking.SnapshotMetrics
	bandwidth    func() map[string]networking.BandwidthUsage
	inputDrops   func() map[string]input.DropCounters
	spectators   func() int
	replay       ReplayRoller
	replayStats  func() replay.Stats
	storageStats func() replay.StorageStats
	events       func(after uint64, limit int) (events.Page, error)
	scoreboard   func() events.Scoreboard
	adminToken   string
	rateLimiter  RateLimiter
	now          func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:       logger,
		readiness:    opts.Readiness,
		world:        opts.World,
		snapshots:    opts.Snapshots,
		bandwidth:    opts.Bandwidth,
		inputDrops:   opts.InputDrops,
		spectators:   opts.Spectators,
		replay:       opts.Replay,
		replayStats:  opts.ReplayStats,
		storageStats: opts.StorageStats,
		events:       opts.Events,
		scoreboard:   opts.Scoreboard,
		adminToken:   strings.TrimSpace(opts.AdminToken),
		rateLimiter:  opts.RateLimiter,
		now:          now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/healthz", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/api/stats", h.StatsHandler())
	mux.HandleFunc("/api/events", h.EventsHandler())
	mux.HandleFunc("/api/scoreboard", h.ScoreboardHandler())
	mux.HandleFunc("/replay/roll", h.ReplayRollHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports readiness with the client count and startup status.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Clients       int     `json:"clients"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.Clients = h.readiness.Clients()
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// statsResponse is the /api/stats document.
type statsResponse struct {
	Timestamp     string                               `json:"timestamp"`
	UptimeSeconds float64                              `json:"uptimeSeconds"`
	Clients       int                                  `json:"clients"`
	Spectators    int                                  `json:"spectators"`
	World         *simulation.Stats                    `json:"world,omitempty"`
	TickFPS       float64                              `json:"tickFps"`
	SnapshotsSent int64                                `json:"snapshotsSent"`
	SnapshotsDrop int64                                `json:"snapshotsDropped"`
	Bandwidth     map[string]networking.BandwidthUsage `json:"bandwidth,omitempty"`
	InputDrops    map[string]input.DropCounters        `json:"inputDrops,omitempty"`
	Replay        *replay.Stats                        `json:"replay,omitempty"`
	Storage       *replay.StorageStats                 `json:"storage,omitempty"`
}

// StatsHandler serves a JSON summary of the world and its subscribers.
func (h *HandlerSet) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.collect())
	}
}

func (h *HandlerSet) collect() statsResponse {
	resp := statsResponse{Timestamp: h.now().UTC().Format(time.RFC3339Nano)}
	if h.readiness != nil {
		resp.Clients = h.readiness.Clients()
		resp.UptimeSeconds = h.readiness.Uptime().Seconds()
	}
	if h.spectators != nil {
		resp.Spectators = h.spectators()
	}
	if h.world != nil {
		stats := h.world()
		resp.World = &stats
		resp.TickFPS = stats.Ticks.AverageFPS()
	}
	if h.snapshots != nil {
		resp.SnapshotsSent, resp.SnapshotsDrop = h.snapshots.Totals()
	}
	if h.bandwidth != nil {
		resp.Bandwidth = h.bandwidth()
	}
	if h.inputDrops != nil {
		resp.InputDrops = h.inputDrops()
	}
	if h.replayStats != nil {
		stats := h.replayStats()
		resp.Replay = &stats
	}
	if h.storageStats != nil {
		stats := h.storageStats()
		resp.Storage = &stats
	}
	return resp
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := h.collect()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		gauge(w, "arena_uptime_seconds", "Server uptime in seconds.", "%.0f", stats.UptimeSeconds)
		gauge(w, "arena_clients", "Connected websocket clients.", "%d", stats.Clients)
		gauge(w, "arena_spectators", "Attached gRPC spectator streams.", "%d", stats.Spectators)
		if world := stats.World; world != nil {
			counter(w, "arena_ticks_total", "Simulation ticks executed.", world.Tick)
			gauge(w, "arena_players", "Live players.", "%d", world.Players)
			gauge(w, "arena_projectiles", "Projectiles in flight.", "%d", world.Projectiles)
			gauge(w, "arena_craters", "Craters in the deformation history.", "%d", world.Craters)
			counter(w, "arena_hits_total", "Projectile hits on players.", world.Hits)
			counter(w, "arena_deaths_total", "Players killed.", world.Deaths)
			counter(w, "arena_suppressed_shots_total", "Shots dropped at the projectile cap.", world.SuppressedShots)
			gauge(w, "arena_tick_duration_seconds", "Average tick processing time.", "%.6f", world.Ticks.Average.Seconds())
			counter(w, "arena_tick_overruns_total", "Ticks that exceeded the budget.", uint64(world.Ticks.Overruns))
		}
		if h.snapshots != nil {
			counter(w, "arena_snapshots_sent_total", "Snapshot frames queued to clients.", uint64(stats.SnapshotsSent))
			counter(w, "arena_snapshots_dropped_total", "Snapshot frames dropped by full queues or throttling.", uint64(stats.SnapshotsDrop))
			bytes := h.snapshots.BytesPerSubscriber()
			if len(bytes) > 0 {
				header(w, "arena_snapshot_bytes", "Last encoded snapshot size per client in bytes.", "gauge")
				for _, id := range slices.Sorted(maps.Keys(bytes)) {
					fmt.Fprintf(w, "arena_snapshot_bytes{client=%q} %d\n", id, bytes[id])
				}
			}
		}
		if len(stats.Bandwidth) > 0 {
			header(w, "arena_bandwidth_bytes_per_second", "Observed outbound bandwidth per client.", "gauge")
			for _, id := range slices.Sorted(maps.Keys(stats.Bandwidth)) {
				fmt.Fprintf(w, "arena_bandwidth_bytes_per_second{client=%q} %.2f\n", id, stats.Bandwidth[id].BytesPerSecond)
			}
			header(w, "arena_bandwidth_denied_total", "Throttled snapshot deliveries per client.", "counter")
			for _, id := range slices.Sorted(maps.Keys(stats.Bandwidth)) {
				fmt.Fprintf(w, "arena_bandwidth_denied_total{client=%q} %d\n", id, stats.Bandwidth[id].Denied)
			}
		}
		if len(stats.InputDrops) > 0 {
			header(w, "arena_input_dropped_total", "Rejected input frames per client and reason.", "counter")
			for _, id := range slices.Sorted(maps.Keys(stats.InputDrops)) {
				drops := stats.InputDrops[id]
				fmt.Fprintf(w, "arena_input_dropped_total{client=%q,reason=\"malformed\"} %d\n", id, drops.Malformed)
				fmt.Fprintf(w, "arena_input_dropped_total{client=%q,reason=\"rate_limited\"} %d\n", id, drops.RateLimited)
			}
		}
		if rec := stats.Replay; rec != nil {
			gauge(w, "arena_replay_frames", "Frames in the open replay bundle.", "%d", rec.Frames)
			counter(w, "arena_replay_rolls_total", "Replay bundles rolled.", uint64(rec.Rolls))
			counter(w, "arena_replay_failures", "Write failures in the open replay bundle.", uint64(rec.Failures))
		}
		if storage := stats.Storage; storage != nil {
			gauge(w, "arena_replay_storage_bytes", "Disk used by retained replay bundles.", "%d", storage.Bytes)
			gauge(w, "arena_replay_storage_matches", "Retained replay bundles.", "%d", storage.Matches)
		}
	}
}

func header(w http.ResponseWriter, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
}

func gauge(w http.ResponseWriter, name, help, format string, value any) {
	header(w, name, help, "gauge")
	fmt.Fprintf(w, "%s "+format+"\n", name, value)
}

func counter(w http.ResponseWriter, name, help string, value uint64) {
	header(w, name, help, "counter")
	fmt.Fprintf(w, "%s %d\n", name, value)
}

// maxEventPage bounds the limit query parameter of EventsHandler.
const maxEventPage = 500

// EventsHandler pages through the kill feed: GET /api/events?after=<seq>&limit=<n>.
func (h *HandlerSet) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.events == nil {
			http.Error(w, "event feed is unavailable", http.StatusServiceUnavailable)
			return
		}
		query := r.URL.Query()
		var after uint64
		if raw := query.Get("after"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				http.Error(w, "after must be a sequence number", http.StatusBadRequest)
				return
			}
			after = parsed
		}
		limit := 0
		if raw := query.Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > maxEventPage {
				http.Error(w, fmt.Sprintf("limit must be between 1 and %d", maxEventPage), http.StatusBadRequest)
				return
			}
			limit = parsed
		}
		page, err := h.events(after, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// ScoreboardHandler serves kills and deaths per player.
func (h *HandlerSet) ScoreboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.scoreboard == nil {
			http.Error(w, "scoreboard is unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, h.scoreboard())
	}
}

// ReplayRollHandler authorises and triggers a replay bundle roll.
func (h *HandlerSet) ReplayRollHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "replay_roll"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("replay roll denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("replay roll denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("replay roll denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if budget, ok := h.rateLimiter.(interface{ Remaining() int }); ok {
			if remaining := budget.Remaining(); remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
		}
		if h.replay == nil {
			reqLogger.Warn("replay roll denied: recording disabled")
			http.Error(w, "replay recording is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.replay.RollReplay(r.Context())
		if err != nil {
			reqLogger.Error("replay roll failed", logging.Error(err))
			http.Error(w, "failed to roll replay", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay rolled", logging.String("location", location))
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
