package simulation

import (
	"math/rand"
	"sync"
	"time"

	"planetarena/server/internal/combat"
	"planetarena/server/internal/deform"
	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/input"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/physics"
	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

// Sink receives the outcome of every tick. Implementations must not block the caller.
type Sink interface {
	PublishSnapshot(snapshot state.Snapshot)
	PublishDeath(event state.DeathEvent)
}

// Stats is a point-in-time summary of the world for diagnostics.
type Stats struct {
	Tick            uint64              `json:"tick"`
	Players         int                 `json:"players"`
	Projectiles     int                 `json:"projectiles"`
	Craters         int                 `json:"craters"`
	CratersTotal    uint64              `json:"craters_total"`
	Hits            uint64              `json:"hits"`
	Deaths          uint64              `json:"deaths"`
	SuppressedShots uint64              `json:"suppressed_shots"`
	Ticks           TickMetricsSnapshot `json:"ticks"`
}

// World owns the registry and runs the per-tick pipeline. Step is the only
// simulation writer; Join and Leave take the same lock so a departing player is
// purged before any later tick can observe it.
type World struct {
	mu       sync.Mutex
	tuning   gameplay.Tuning
	registry *state.Registry
	slots    *input.Slots
	resolver *combat.Resolver
	deformer *deform.Accumulator
	rng      *rand.Rand
	logger   *logging.Logger
	monitor  *TickMonitor
	sinks    []Sink

	tick            uint64
	elapsed         time.Duration
	hits            uint64
	deaths          uint64
	suppressedShots uint64
}

// WorldOption customises world construction.
type WorldOption func(*World)

// WithLogger sets the world logger.
func WithLogger(logger *logging.Logger) WorldOption {
	return func(w *World) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRand seeds spawn placement and crater depths.
func WithRand(rng *rand.Rand) WorldOption {
	return func(w *World) {
		if rng != nil {
			w.rng = rng
		}
	}
}

// WithSink registers a consumer of snapshots and deaths.
func WithSink(sink Sink) WorldOption {
	return func(w *World) {
		if sink != nil {
			w.sinks = append(w.sinks, sink)
		}
	}
}

// WithMonitor records per-tick processing time.
func WithMonitor(monitor *TickMonitor) WorldOption {
	return func(w *World) {
		if monitor != nil {
			w.monitor = monitor
		}
	}
}

// NewWorld builds an empty arena reading commands from slots.
func NewWorld(tuning gameplay.Tuning, slots *input.Slots, opts ...WorldOption) *World {
	w := &World{
		tuning:   tuning,
		registry: state.NewRegistry(tuning),
		slots:    slots,
		resolver: combat.NewResolver(tuning),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.slots == nil {
		w.slots = input.NewSlots()
	}
	w.deformer = deform.NewAccumulator(w.registry.Craters(), tuning, w.rng)
	return w
}

// Join spawns a player at a uniformly random point on the planet surface.
func (w *World) Join(id string) (state.PlayerView, error) {
	w.mu.Lock()
	position := vecmath.RandomOnSphere(w.rng, w.tuning.PlanetRadius)
	w.mu.Unlock()
	return w.JoinAt(id, position)
}

// JoinAt spawns a player at position.
func (w *World) JoinAt(id string, position vecmath.Vector3) (state.PlayerView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	player, err := w.registry.SpawnPlayer(id, position, w.tick)
	if err != nil {
		return state.PlayerView{}, err
	}
	w.logger.Info("player connected", logging.String("player_id", id), logging.Int("players", w.registry.PlayerCount()))
	return state.PlayerView{ID: player.ID, Position: player.Position, Yaw: player.Yaw, Health: player.Health}, nil
}

// Leave removes a disconnected player and its input slot immediately.
func (w *World) Leave(id string) bool {
	w.mu.Lock()
	removed := w.registry.RemovePlayer(id)
	w.slots.Forget(id)
	w.mu.Unlock()
	if removed {
		w.logger.Info("player disconnected", logging.String("player_id", id))
	}
	return removed
}

// Inspect runs fn against the registry under the world lock. fn must not retain it.
func (w *World) Inspect(fn func(reg *state.Registry)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.registry)
}

// Step runs one tick: physics, collisions, deformation, then broadcast.
func (w *World) Step(step time.Duration) {
	started := time.Now()
	snapshot, deaths := w.advance(step)
	//1.- Publish outside the lock; sinks never block the tick.
	for _, sink := range w.sinks {
		for _, death := range deaths {
			sink.PublishDeath(death)
		}
		sink.PublishSnapshot(snapshot)
	}
	w.monitor.Observe(time.Since(started))
}

func (w *World) advance(step time.Duration) (state.Snapshot, []state.DeathEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick++
	w.elapsed += step
	reg := w.registry

	//1.- Latch the latest commands atomically and integrate every tank.
	commands := w.slots.Read()
	for _, player := range reg.Players() {
		if cmd, ok := commands[player.ID]; ok {
			player.Input = cmd
		}
		physics.StepTank(&player.Body, player.Input, w.tuning)
		if player.Input.Shoot {
			w.tryShoot(player)
		}
	}

	//2.- Integrate projectiles, marking impacts and range exits without removing anything yet.
	arena := reg.Projectiles()
	var impacts []vecmath.Vector3
	for i := 0; i < arena.Len(); i++ {
		if !arena.Live(i) {
			continue
		}
		projectile := arena.At(i)
		outcome := physics.StepProjectile(&projectile.Position, &projectile.Velocity, w.tuning)
		switch outcome.Fate {
		case physics.FateImpact:
			arena.Resolve(i, state.CauseImpact)
			impacts = append(impacts, outcome.Crater)
		case physics.FateOutOfRange:
			arena.Resolve(i, state.CauseOutOfRange)
		}
	}

	//3.- Collisions only see projectiles still active after their own step.
	for _, hit := range w.resolver.Resolve(reg, w.tick) {
		w.hits++
		w.logger.Debug("projectile hit", hit.LoggingFields()...)
	}

	//4.- Record craters in impact order.
	for _, point := range impacts {
		w.deformer.Record(point)
	}

	//5.- Apply removals after every traversal is done.
	arena.Compact()
	deaths := reg.DrainDeaths()
	for _, death := range deaths {
		w.deaths++
		w.slots.Forget(death.PlayerID)
		w.logger.Info("player died", logging.String("player_id", death.PlayerID), logging.String("killer_id", death.KillerID))
	}
	return reg.Snapshot(w.tick), deaths
}

func (w *World) tryShoot(player *state.Player) {
	if !player.CooldownElapsed(w.elapsed, w.tuning.ShootCooldown()) {
		return
	}
	position, velocity, ok := physics.Muzzle(player.Body, w.tuning)
	if !ok {
		return
	}
	//1.- At the projectile cap the shot is suppressed and the cooldown is left untouched.
	if _, spawned := w.registry.Projectiles().Spawn(state.Projectile{
		Position:  position,
		Velocity:  velocity,
		OwnerID:   player.ID,
		SpawnTick: w.tick,
	}); !spawned {
		w.suppressedShots++
		return
	}
	player.LastShotAt = w.elapsed
	player.HasFired = true
}

// Snapshot returns the world as of the last completed tick.
func (w *World) Snapshot() state.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.registry.Snapshot(w.tick)
}

// Tick returns the number of completed ticks.
func (w *World) Tick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

// Stats summarises the world for the diagnostics endpoint.
func (w *World) Stats() Stats {
	w.mu.Lock()
	stats := Stats{
		Tick:            w.tick,
		Players:         w.registry.PlayerCount(),
		Projectiles:     w.registry.Projectiles().Active(),
		Craters:         w.registry.Craters().Len(),
		CratersTotal:    w.registry.Craters().Total(),
		Hits:            w.hits,
		Deaths:          w.deaths,
		SuppressedShots: w.suppressedShots,
	}
	w.mu.Unlock()
	stats.Ticks = w.monitor.Snapshot()
	return stats
}

// Tuning returns the constants the world simulates with.
func (w *World) Tuning() gameplay.Tuning { return w.tuning }
