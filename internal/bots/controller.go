package bots

import (
	"context"
	"errors"
	"sync"
	"time"

	"planetarena/server/internal/logging"
)

// Launcher starts or stops headless tanks until the requested number runs.
type Launcher interface {
	// Scale adjusts the number of active bots and returns the confirmed population.
	Scale(ctx context.Context, target int) (int, error)
}

// Snapshot exposes the observed participant counts.
type Snapshot struct {
	Humans int `json:"humans"`
	Bots   int `json:"bots"`
	Target int `json:"target"`
}

// ControllerConfig configures the bot population controller.
type ControllerConfig struct {
	TargetPopulation int
	Launcher         Launcher
	Logger           *logging.Logger
}

// Controller keeps humans plus bots at the target arena population.
type Controller struct {
	mu sync.Mutex

	humans   int
	bots     int
	target   int
	launcher Launcher
	logger   *logging.Logger
}

// NewController constructs a population controller with the supplied configuration.
func NewController(cfg ControllerConfig) *Controller {
	controller := &Controller{launcher: cfg.Launcher, logger: cfg.Logger}
	if cfg.TargetPopulation > 0 {
		controller.target = cfg.TargetPopulation
	}
	if controller.logger == nil {
		controller.logger = logging.L()
	}
	return controller
}

// SetTargetPopulation updates the desired total number of tanks and reconciles bots.
func (c *Controller) SetTargetPopulation(ctx context.Context, population int) error {
	if c == nil {
		return errors.New("controller is nil")
	}
	if population < 0 {
		return errors.New("population must be non-negative")
	}
	c.mu.Lock()
	c.target = population
	targetBots := c.desiredBotsLocked()
	c.mu.Unlock()
	return c.reconcile(ctx, targetBots)
}

// ObserveClients records how many websocket clients the server reports. Bots are
// clients too, so the human count is what remains after subtracting them.
func (c *Controller) ObserveClients(ctx context.Context, clients int) error {
	if c == nil {
		return errors.New("controller is nil")
	}
	c.mu.Lock()
	//1.- Clamp at zero while a scale-down has not reached the server yet.
	humans := clients - c.bots
	if humans < 0 {
		humans = 0
	}
	c.humans = humans
	targetBots := c.desiredBotsLocked()
	current := c.bots
	c.mu.Unlock()
	if targetBots == current {
		return nil
	}
	//2.- Only talk to the launcher when the population is off target.
	return c.reconcile(ctx, targetBots)
}

// Watch polls clients every interval and reconciles until ctx is cancelled.
// Poll failures are logged and the previous population is kept.
func (c *Controller) Watch(ctx context.Context, interval time.Duration, clients func(context.Context) (int, error)) {
	if c == nil || clients == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		count, err := clients(ctx)
		if err != nil {
			c.logger.Warn("population poll failed", logging.Error(err))
			continue
		}
		if err := c.ObserveClients(ctx, count); err != nil {
			c.logger.Warn("bot reconcile failed", logging.Error(err), logging.Int("clients", count))
		}
	}
}

// Snapshot returns the most recent human and bot counts without mutating state.
func (c *Controller) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Humans: c.humans, Bots: c.bots, Target: c.target}
}

func (c *Controller) desiredBotsLocked() int {
	desired := c.target - c.humans
	if desired < 0 {
		desired = 0
	}
	return desired
}

func (c *Controller) reconcile(ctx context.Context, target int) error {
	if target < 0 {
		target = 0
	}
	var (
		confirmed int
		err       error
	)
	if c.launcher != nil {
		confirmed, err = c.launcher.Scale(ctx, target)
	} else {
		confirmed = target
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.bots = confirmed
	c.mu.Unlock()
	c.logger.Debug("bot population reconciled", logging.Int("bots", confirmed), logging.Int("requested", target))
	return nil
}
