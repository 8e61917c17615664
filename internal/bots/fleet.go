package bots

import (
	"context"
	"errors"
	"sync"

	"planetarena/server/internal/logging"
)

// Runner plays one headless session until its context ends.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFactory builds the runner for the bot with the given sequence number.
type RunnerFactory func(index int) Runner

type bot struct {
	index  int
	cancel context.CancelFunc
	done   chan struct{}
}

func (b *bot) finished() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Fleet is an in-process Launcher: every bot is a goroutine running its own
// websocket client. Bots that exit on their own are replaced on the next Scale.
type Fleet struct {
	mu      sync.Mutex
	parent  context.Context
	factory RunnerFactory
	logger  *logging.Logger
	bots    []*bot
	next    int
	stopped bool
}

// NewFleet binds the fleet to parent; cancelling it ends every bot.
func NewFleet(parent context.Context, factory RunnerFactory, logger *logging.Logger) *Fleet {
	if logger == nil {
		logger = logging.L()
	}
	return &Fleet{parent: parent, factory: factory, logger: logger}
}

// Scale starts or stops bots until target are running. Stopped bots are awaited
// so the returned count matches the sessions the server will still see.
func (f *Fleet) Scale(ctx context.Context, target int) (int, error) {
	if f == nil || f.factory == nil {
		return 0, errors.New("fleet has no runner factory")
	}
	if target < 0 {
		return 0, errors.New("target must be non-negative")
	}
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return 0, errors.New("fleet stopped")
	}
	//1.- Forget bots whose sessions already ended.
	alive := f.bots[:0]
	for _, b := range f.bots {
		if !b.finished() {
			alive = append(alive, b)
		}
	}
	f.bots = alive

	//2.- Retire the newest bots first.
	var retiring []*bot
	for len(f.bots) > target {
		last := f.bots[len(f.bots)-1]
		f.bots = f.bots[:len(f.bots)-1]
		last.cancel()
		retiring = append(retiring, last)
	}
	for len(f.bots) < target {
		f.bots = append(f.bots, f.startLocked())
	}
	running := len(f.bots)
	f.mu.Unlock()

	for _, b := range retiring {
		select {
		case <-b.done:
		case <-ctx.Done():
			return running, ctx.Err()
		}
	}
	return running, nil
}

func (f *Fleet) startLocked() *bot {
	ctx, cancel := context.WithCancel(f.parent)
	b := &bot{index: f.next, cancel: cancel, done: make(chan struct{})}
	f.next++
	runner := f.factory(b.index)
	go func() {
		defer close(b.done)
		defer cancel()
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("bot session ended", logging.Int("bot", b.index), logging.Error(err))
		}
	}()
	return b
}

// Running reports the bots whose sessions are still live.
func (f *Fleet) Running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, b := range f.bots {
		if !b.finished() {
			count++
		}
	}
	return count
}

// Stop cancels every bot and waits for them to exit.
func (f *Fleet) Stop() {
	f.mu.Lock()
	f.stopped = true
	bots := f.bots
	f.bots = nil
	f.mu.Unlock()
	for _, b := range bots {
		b.cancel()
	}
	for _, b := range bots {
		<-b.done
	}
}
