package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"planetarena/server/internal/input"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/networking"
	"planetarena/server/internal/state"
)

const (
	defaultPingInterval    = 30 * time.Second
	defaultMaxPayloadBytes = 64 << 10
	defaultSendQueue       = 64
)

// Game is the part of the simulation sessions talk to.
type Game interface {
	Join(id string) (state.PlayerView, error)
	Leave(id string) bool
}

// Options configures a Hub.
type Options struct {
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	SendQueue       int
	Authenticator   Authenticator
	// Welcome is sent to every new session with PlayerID filled in.
	Welcome      networking.Welcome
	PanicHandler func(any)
}

// Hub upgrades HTTP requests into player sessions and routes their input.
type Hub struct {
	game        Game
	slots       *input.Slots
	gate        *input.Gate
	broadcaster *networking.Broadcaster
	logger      *logging.Logger
	opts        Options
	upgrader    websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	reserved int
	closed   bool
	wg       sync.WaitGroup
}

// NewHub wires sessions to the game, the input slots and the broadcaster.
func NewHub(game Game, slots *input.Slots, gate *input.Gate, broadcaster *networking.Broadcaster, logger *logging.Logger, opts Options) *Hub {
	if logger == nil {
		logger = logging.L()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = defaultMaxPayloadBytes
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = defaultSendQueue
	}
	if opts.Authenticator == nil {
		opts.Authenticator = AllowAll{}
	}
	h := &Hub{
		game:        game,
		slots:       slots,
		gate:        gate,
		broadcaster: broadcaster,
		logger:      logger,
		opts:        opts,
		sessions:    make(map[string]*session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 16384,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, parsed.Host) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and runs the session until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.LoggerFromContext(r.Context())
	if logger == logging.L() {
		logger = h.logger
	}

	//1.- Reject before upgrading so clients get a plain HTTP status.
	encoding, err := networking.ParseEncoding(r.URL.Query().Get("encoding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	subject, err := h.opts.Authenticator.Authenticate(r)
	if err != nil {
		logger.Warn("websocket auth rejected", logging.String("remote", r.RemoteAddr), logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.reserve() {
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.release()
		logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	id := uuid.NewString()
	sessionLogger := logger.With(logging.String("session_id", id), logging.String("encoding", encoding.String()))
	if subject != "" {
		sessionLogger = sessionLogger.With(logging.String("subject", subject))
	}
	s := newSession(id, encoding, conn, h.opts.SendQueue, sessionLogger)
	if !h.register(s) {
		s.closeWith(websocket.CloseGoingAway, "shutting down")
		return
	}
	defer h.wg.Done()
	defer h.finish(s)

	//2.- Spawn, greet, then subscribe so the welcome precedes the first gameState.
	if _, err := h.game.Join(id); err != nil {
		sessionLogger.Error("join failed", logging.Error(err))
		s.closeWith(websocket.CloseInternalServerErr, "join failed")
		return
	}
	welcome := h.opts.Welcome
	welcome.PlayerID = id
	payload, err := networking.Encode(encoding, networking.EventWelcome, welcome)
	if err != nil {
		sessionLogger.Error("encode welcome failed", logging.Error(err))
		s.closeWith(websocket.CloseInternalServerErr, "encode failed")
		return
	}
	s.Enqueue(networking.Frame{Binary: encoding.Binary(), Payload: payload})
	h.broadcaster.Add(s)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.recoverPanic(s)
		s.writePump(h.opts.PingInterval)
	}()
	h.readPump(s)
}

func (h *Hub) readPump(s *session) {
	defer h.recoverPanic(s)
	conn := s.conn
	conn.SetReadLimit(h.opts.MaxPayloadBytes)
	pongWait := 2 * h.opts.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("read failed", logging.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		decision := h.gate.Evaluate(s.id)
		if decision.Disconnect {
			s.closeWith(websocket.ClosePolicyViolation, "input rate exceeded")
			return
		}
		if !decision.Accepted {
			continue
		}
		h.handleFrame(s, data)
	}
}

// handleFrame decodes one inbound frame. Malformed frames are dropped and the
// previous command stays in effect.
func (h *Hub) handleFrame(s *session, data []byte) {
	envelope, err := networking.DecodeEnvelope(s.encoding, data)
	if err != nil {
		h.gate.ObserveMalformed(s.id)
		s.logger.Debug("dropping malformed frame", logging.Error(err))
		return
	}
	if envelope.Event != networking.EventPlayerInput {
		s.logger.Debug("ignoring unknown event", logging.String("event", envelope.Event))
		return
	}
	var cmd input.Command
	if s.encoding == networking.EncodingMsgpack {
		cmd, err = input.DecodeMsgpack(envelope.Data, s.prev)
	} else {
		cmd, err = input.Decode(envelope.Data, s.prev)
	}
	if err != nil {
		h.gate.ObserveMalformed(s.id)
		s.logger.Debug("dropping malformed input", logging.Error(err))
		return
	}
	s.prev = cmd
	h.slots.Store(s.id, cmd)
}

func (h *Hub) recoverPanic(s *session) {
	if recovered := recover(); recovered != nil {
		s.logger.Error("session panic", logging.Any("panic", recovered))
		if h.opts.PanicHandler != nil {
			h.opts.PanicHandler(recovered)
		}
		s.close()
	}
}

// reserve claims a client slot under MaxClients before the upgrade.
func (h *Hub) reserve() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.opts.MaxClients > 0 && len(h.sessions)+h.reserved >= h.opts.MaxClients {
		return false
	}
	h.reserved++
	return true
}

func (h *Hub) release() {
	h.mu.Lock()
	h.reserved--
	h.mu.Unlock()
}

// register converts a reservation into a live session.
func (h *Hub) register(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reserved--
	if h.closed {
		return false
	}
	h.sessions[s.id] = s
	h.wg.Add(1)
	return true
}

// finish removes every trace of the session. The player leaves the world
// before this returns, so the next tick no longer simulates it.
func (h *Hub) finish(s *session) {
	h.broadcaster.Remove(s.id)
	h.game.Leave(s.id)
	h.gate.Forget(s.id)
	h.slots.Forget(s.id)
	s.close()
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
	s.logger.Info("session closed")
}

// Shutdown closes every session and waits for their pumps until ctx expires.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("sessions still draining"), ctx.Err())
	}
}
