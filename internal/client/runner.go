package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/input"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/networking"
	"planetarena/server/internal/state"
)

const (
	// DefaultInputInterval is how often the latest command is sent, changed or not.
	DefaultInputInterval = 50 * time.Millisecond
	// DefaultFrameInterval drives prediction in the headless client.
	DefaultFrameInterval = time.Second / 60
)

// ErrNoWelcome is returned when the server's first message is not a welcome.
var ErrNoWelcome = errors.New("server did not send welcome")

// Controller chooses the next command from the displayed world.
type Controller interface {
	Next(view View) input.Command
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(View) input.Command

// Next implements Controller.
func (f ControllerFunc) Next(view View) input.Command { return f(view) }

// Config configures a Runner.
type Config struct {
	URL           string
	Encoding      networking.Encoding
	Token         string
	Tuning        gameplay.Tuning
	Store         StoreOptions
	InputInterval time.Duration
	FrameInterval time.Duration
	Controller    Controller
	// OnFrame observes the store after every prediction step.
	OnFrame func(View)
	Dialer  *websocket.Dialer
	Logger  *logging.Logger
}

// Runner is a headless client: it connects, predicts locally, reconciles with
// every snapshot and streams input. One goroutine owns the store.
type Runner struct {
	cfg    Config
	logger *logging.Logger
}

// deathBacklog bounds the death notices waiting for the frame loop.
const deathBacklog = 32

// NewRunner applies defaults to cfg.
func NewRunner(cfg Config) *Runner {
	if cfg.InputInterval <= 0 {
		cfg.InputInterval = DefaultInputInterval
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &Runner{cfg: cfg, logger: logger}
}

func (r *Runner) endpoint() (string, error) {
	parsed, err := url.Parse(r.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	query := parsed.Query()
	if r.cfg.Encoding != networking.EncodingJSON {
		query.Set("encoding", r.cfg.Encoding.String())
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Run connects and plays until ctx is cancelled. Losing the connection does not
// end the run: prediction keeps extrapolating the last known state.
func (r *Runner) Run(ctx context.Context) error {
	endpoint, err := r.endpoint()
	if err != nil {
		return err
	}
	header := http.Header{}
	if r.cfg.Token != "" {
		header.Set("X-Auth-Token", r.cfg.Token)
	}
	conn, _, err := r.cfg.Dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	welcome, err := r.readWelcome(conn)
	if err != nil {
		return err
	}
	logger := r.logger.With(logging.String("player_id", welcome.PlayerID))
	logger.Info("connected", logging.String("url", endpoint), logging.Float64("tick_hz", welcome.TickHz))

	store := NewStore(welcome.PlayerID, r.cfg.Tuning, r.cfg.Store)
	snapshots := make(chan state.Snapshot, 1)
	deaths := make(chan string, deathBacklog)
	disconnected := make(chan error, 1)
	go r.readLoop(ctx, conn, snapshots, deaths, disconnected)

	frames := time.NewTicker(r.cfg.FrameInterval)
	defer frames.Stop()
	sends := time.NewTicker(r.cfg.InputInterval)
	defer sends.Stop()

	connected := true
	for {
		select {
		case <-ctx.Done():
			if connected {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			}
			return nil
		case err := <-disconnected:
			connected = false
			logger.Warn("connection lost, extrapolating", logging.Error(err))
		case snapshot := <-snapshots:
			store.Apply(snapshot)
		case id := <-deaths:
			if id == store.LocalID() {
				logger.Info("local player died")
			}
		case <-frames.C:
			if r.cfg.Controller != nil {
				store.SetInput(r.cfg.Controller.Next(store.View()))
			}
			store.Frame()
			if r.cfg.OnFrame != nil {
				r.cfg.OnFrame(store.View())
			}
		case <-sends.C:
			if !connected || !store.Alive() {
				continue
			}
			if err := r.sendInput(conn, store.Input()); err != nil {
				logger.Debug("send input failed", logging.Error(err))
			}
		}
	}
}

func (r *Runner) readWelcome(conn *websocket.Conn) (networking.Welcome, error) {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	_, data, err := conn.ReadMessage()
	if err != nil {
		return networking.Welcome{}, fmt.Errorf("read welcome: %w", err)
	}
	envelope, err := networking.DecodeEnvelope(r.cfg.Encoding, data)
	if err != nil {
		return networking.Welcome{}, err
	}
	if envelope.Event != networking.EventWelcome {
		return networking.Welcome{}, fmt.Errorf("%w: got %q", ErrNoWelcome, envelope.Event)
	}
	return networking.DecodePayload[networking.Welcome](r.cfg.Encoding, envelope.Data)
}

// readLoop forwards decoded messages. Only the newest snapshot matters, so the
// snapshot channel sheds older ones; death notices queue on their own channel
// and are never dropped for a snapshot.
func (r *Runner) readLoop(ctx context.Context, conn *websocket.Conn, snapshots chan state.Snapshot, deaths chan<- string, disconnected chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			disconnected <- err
			return
		}
		envelope, err := networking.DecodeEnvelope(r.cfg.Encoding, data)
		if err != nil {
			r.logger.Debug("dropping undecodable frame", logging.Error(err))
			continue
		}
		switch envelope.Event {
		case networking.EventGameState:
			gameState, err := networking.DecodePayload[networking.GameState](r.cfg.Encoding, envelope.Data)
			if err != nil {
				r.logger.Debug("dropping bad game state", logging.Error(err))
				continue
			}
			offerSnapshot(snapshots, gameState.Snapshot())
		case networking.EventPlayerDied:
			id, err := networking.DecodePayload[string](r.cfg.Encoding, envelope.Data)
			if err != nil {
				continue
			}
			select {
			case deaths <- id:
			case <-ctx.Done():
				return
			}
		}
	}
}

// offerSnapshot replaces whatever snapshot is still queued with snapshot.
// There is a single producer, so one drain always frees the slot.
func offerSnapshot(out chan state.Snapshot, snapshot state.Snapshot) {
	for {
		select {
		case out <- snapshot:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

func (r *Runner) sendInput(conn *websocket.Conn, cmd input.Command) error {
	payload := map[string]any{"rotate": cmd.Rotate, "move": cmd.Move, "shoot": cmd.Shoot}
	frame, err := networking.Encode(r.cfg.Encoding, networking.EventPlayerInput, payload)
	if err != nil {
		return err
	}
	messageType := websocket.TextMessage
	if r.cfg.Encoding.Binary() {
		messageType = websocket.BinaryMessage
	}
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	return conn.WriteMessage(messageType, frame)
}
