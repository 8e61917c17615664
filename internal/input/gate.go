package input

import (
	"sync"
	"time"

	"planetarena/server/internal/logging"
)

// Clock exposes the current time for rate limiting decisions.
type Clock interface {
	Now() time.Time
}

type clockFunc func() time.Time

// Now implements Clock for functional adapters.
func (c clockFunc) Now() time.Time { return c() }

// systemClock relies on time.Now for production code paths.
type systemClock struct{}

// Now implements Clock by delegating to time.Now.
func (systemClock) Now() time.Time { return time.Now() }

// Config bounds how many input frames a session may send.
type Config struct {
	// Limit is the number of frames accepted per Window. Zero disables the gate.
	Limit int
	// Window is the length of one rate accounting window.
	Window time.Duration
	// MaxStrikes is the number of consecutive over-budget windows tolerated before
	// the session is disconnected. Zero never disconnects.
	MaxStrikes int
}

// DefaultConfig allows one frame per server tick with a short grace period.
var DefaultConfig = Config{Limit: 60, Window: time.Second, MaxStrikes: 3}

// DropReason enumerates why a frame was rejected by the gate.
type DropReason string

const (
	DropReasonNone        DropReason = ""
	DropReasonMalformed   DropReason = "malformed"
	DropReasonRateLimited DropReason = "rate_limit"
)

// String returns the textual representation of the drop reason.
func (r DropReason) String() string { return string(r) }

// Decision summarises whether a frame passed the gate.
type Decision struct {
	Accepted   bool
	Reason     DropReason
	Disconnect bool
}

type sessionWindow struct {
	start    time.Time
	count    int
	overflow bool
	strikes  int
}

// DropCounters aggregates per-reason drop counts.
type DropCounters struct {
	Malformed   uint64 `json:"malformed"`
	RateLimited uint64 `json:"rate_limited"`
}

// Metrics stores per-session drop counters for diagnostics.
type Metrics struct {
	mu    sync.RWMutex
	drops map[string]DropCounters
}

// newMetrics provisions an empty metrics container.
func newMetrics() *Metrics {
	return &Metrics{drops: make(map[string]DropCounters)}
}

// observe increments the counter for the supplied reason.
func (m *Metrics) observe(sessionID string, reason DropReason) {
	if m == nil || sessionID == "" || reason == DropReasonNone {
		return
	}
	m.mu.Lock()
	current := m.drops[sessionID]
	switch reason {
	case DropReasonMalformed:
		current.Malformed++
	case DropReasonRateLimited:
		current.RateLimited++
	}
	m.drops[sessionID] = current
	m.mu.Unlock()
}

// snapshot returns a deep copy of the counters for external consumption.
func (m *Metrics) snapshot() map[string]DropCounters {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.drops) == 0 {
		return nil
	}
	clone := make(map[string]DropCounters, len(m.drops))
	for id, counters := range m.drops {
		clone[id] = counters
	}
	return clone
}

// forget removes a session's counters when the connection closes.
func (m *Metrics) forget(sessionID string) {
	if m == nil || sessionID == "" {
		return
	}
	m.mu.Lock()
	delete(m.drops, sessionID)
	m.mu.Unlock()
}

// Gate enforces a per-session frame budget in fixed windows.
type Gate struct {
	mu       sync.Mutex
	cfg      Config
	clock    Clock
	logger   *logging.Logger
	metrics  *Metrics
	sessions map[string]*sessionWindow
}

// Option customises gate construction.
type Option func(*Gate)

// WithClock overrides the clock used for window accounting.
func WithClock(clock Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithMetrics injects a pre-built metrics container, enabling shared aggregation across gates.
func WithMetrics(metrics *Metrics) Option {
	return func(g *Gate) {
		if metrics != nil {
			g.metrics = metrics
		}
	}
}

// NewGate constructs a gate with the supplied configuration and logger.
func NewGate(cfg Config, logger *logging.Logger, opts ...Option) *Gate {
	//1.- Normalise nonsensical settings so the corresponding checks disable gracefully.
	if cfg.Limit < 0 {
		cfg.Limit = 0
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.MaxStrikes < 0 {
		cfg.MaxStrikes = 0
	}
	gate := &Gate{
		cfg:      cfg,
		clock:    systemClock{},
		logger:   logger,
		metrics:  newMetrics(),
		sessions: make(map[string]*sessionWindow),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(gate)
		}
	}
	return gate
}

// Evaluate counts one inbound frame for the session.
func (g *Gate) Evaluate(sessionID string) Decision {
	decision := Decision{Accepted: true}
	if g == nil || sessionID == "" || g.cfg.Limit == 0 {
		return decision
	}
	now := g.clock.Now()

	g.mu.Lock()
	window := g.sessions[sessionID]
	if window == nil {
		window = &sessionWindow{start: now}
		g.sessions[sessionID] = window
	}
	//1.- Roll the window forward, charging a strike when the previous one overflowed.
	if now.Sub(window.start) >= g.cfg.Window {
		if window.overflow && now.Sub(window.start) < 2*g.cfg.Window {
			window.strikes++
		} else {
			window.strikes = 0
		}
		window.start = now
		window.count = 0
		window.overflow = false
	}
	//2.- Accept while the budget lasts, otherwise drop and remember the overflow.
	window.count++
	if window.count > g.cfg.Limit {
		window.overflow = true
		decision = Decision{Accepted: false, Reason: DropReasonRateLimited}
		if g.cfg.MaxStrikes > 0 && window.strikes+1 >= g.cfg.MaxStrikes {
			decision.Disconnect = true
		}
	}
	strikes := window.strikes
	g.mu.Unlock()

	if !decision.Accepted {
		g.metrics.observe(sessionID, decision.Reason)
		if decision.Disconnect && g.logger != nil {
			g.logger.Warn("input rate exceeded", logging.String("session_id", sessionID), logging.Int("strikes", strikes+1))
		}
	}
	return decision
}

// ObserveMalformed records a payload that failed to decode.
func (g *Gate) ObserveMalformed(sessionID string) {
	if g == nil {
		return
	}
	g.metrics.observe(sessionID, DropReasonMalformed)
}

// Forget clears window state and metrics for a disconnected session.
func (g *Gate) Forget(sessionID string) {
	if g == nil || sessionID == "" {
		return
	}
	g.mu.Lock()
	delete(g.sessions, sessionID)
	g.mu.Unlock()
	g.metrics.forget(sessionID)
}

// Metrics returns a snapshot of the latest drop counters.
func (g *Gate) Metrics() map[string]DropCounters {
	if g == nil {
		return nil
	}
	return g.metrics.snapshot()
}
