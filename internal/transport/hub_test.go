package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"planetarena/server/internal/auth"
	"planetarena/server/internal/input"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/networking"
	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

type fakeGame struct {
	mu     sync.Mutex
	joined []string
	left   []string
}

func (g *fakeGame) Join(id string) (state.PlayerView, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joined = append(g.joined, id)
	return state.PlayerView{ID: id, Health: 100}, nil
}

func (g *fakeGame) Leave(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.left = append(g.left, id)
	return true
}

func (g *fakeGame) leftCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.left)
}

type harness struct {
	hub         *Hub
	game        *fakeGame
	slots       *input.Slots
	broadcaster *networking.Broadcaster
	server      *httptest.Server
}

func newHarness(t *testing.T, gateCfg input.Config, opts Options) *harness {
	t.Helper()
	logger := logging.NewTestLogger()
	h := &harness{game: &fakeGame{}, slots: input.NewSlots(), broadcaster: networking.NewBroadcaster(logger)}
	if opts.Welcome.TickHz == 0 {
		opts.Welcome = networking.Welcome{TickHz: 60, PlanetRadius: 5, TankHeight: 0.5}
	}
	h.hub = NewHub(h.game, h.slots, input.NewGate(gateCfg, logger), h.broadcaster, logger, opts)
	h.server = httptest.NewServer(h.hub)
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) url(query string) string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?" + query
}

func (h *harness) dial(t *testing.T, query string) (*websocket.Conn, networking.Welcome) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.url(query), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	encoding, _ := networking.ParseEncoding(queryValue(query, "encoding"))
	envelope := readEnvelope(t, conn, encoding)
	if envelope.Event != networking.EventWelcome {
		t.Fatalf("expected welcome first, got %q", envelope.Event)
	}
	welcome, err := networking.DecodePayload[networking.Welcome](encoding, envelope.Data)
	if err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	return conn, welcome
}

func queryValue(query, key string) string {
	for _, part := range strings.Split(query, "&") {
		if value, ok := strings.CutPrefix(part, key+"="); ok {
			return value
		}
	}
	return ""
}

func readEnvelope(t *testing.T, conn *websocket.Conn, encoding networking.Encoding) networking.InboundEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	envelope, err := networking.DecodeEnvelope(encoding, data)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return envelope
}

func sendJSON(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHubWelcomesAndStoresMergedInput(t *testing.T) {
	h := newHarness(t, input.DefaultConfig, Options{})
	conn, welcome := h.dial(t, "")

	//1.- The welcome names the spawned player and the world shape.
	if welcome.PlayerID == "" || welcome.TickHz != 60 || welcome.PlanetRadius != 5 {
		t.Fatalf("unexpected welcome %+v", welcome)
	}

	//2.- A full command, then garbage, then a partial update merge in order.
	sendJSON(t, conn, `{"event":"playerInput","data":{"rotate":0.5,"move":1,"shoot":true}}`)
	sendJSON(t, conn, `{"event":"playerInput","data":"nonsense"}`)
	sendJSON(t, conn, `{"event":"playerInput","data":{"move":-7}}`)
	waitFor(t, "merged input", func() bool {
		cmd, ok := h.slots.Latest(welcome.PlayerID)
		return ok && cmd.Move == -1
	})
	cmd, _ := h.slots.Latest(welcome.PlayerID)
	if cmd.Rotate != 0.5 || !cmd.Shoot {
		t.Fatalf("expected earlier fields to persist, got %+v", cmd)
	}
}

func TestHubRemovesPlayerOnDisconnect(t *testing.T) {
	h := newHarness(t, input.DefaultConfig, Options{})
	conn, welcome := h.dial(t, "")
	sendJSON(t, conn, `{"event":"playerInput","data":{"move":1}}`)
	waitFor(t, "input", func() bool { _, ok := h.slots.Latest(welcome.PlayerID); return ok })

	conn.Close()
	waitFor(t, "leave", func() bool { return h.game.leftCount() == 1 && h.hub.Count() == 0 })
	if _, ok := h.slots.Latest(welcome.PlayerID); ok {
		t.Fatalf("expected input slot to be forgotten")
	}
	if h.broadcaster.Count() != 0 {
		t.Fatalf("expected subscriber to be removed")
	}
}

func TestHubBroadcastsSnapshots(t *testing.T) {
	h := newHarness(t, input.DefaultConfig, Options{})
	conn, welcome := h.dial(t, "encoding=msgpack")
	waitFor(t, "subscriber", func() bool { return h.broadcaster.Count() == 1 })

	h.broadcaster.PublishSnapshot(state.Snapshot{
		Tick:    3,
		Players: []state.PlayerView{{ID: welcome.PlayerID, Position: vecmath.New(0, 5.5, 0), Health: 100}},
	})
	envelope := readEnvelope(t, conn, networking.EncodingMsgpack)
	if envelope.Event != networking.EventGameState {
		t.Fatalf("expected gameState, got %q", envelope.Event)
	}
	message, err := networking.DecodePayload[networking.GameState](networking.EncodingMsgpack, envelope.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if message.Tick != 3 || message.Players[welcome.PlayerID].Health != 100 {
		t.Fatalf("unexpected game state %+v", message)
	}
}

func TestHubDisconnectsFloodingSession(t *testing.T) {
	h := newHarness(t, input.Config{Limit: 2, Window: time.Minute, MaxStrikes: 1}, Options{})
	conn, _ := h.dial(t, "")

	for i := 0; i < 5; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"playerInput","data":{"move":1}}`)); err != nil {
			break
		}
	}
	//1.- The server answers the third frame with a policy violation close.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
			t.Fatalf("expected policy violation close, got %v", err)
		}
		break
	}
	waitFor(t, "leave", func() bool { return h.game.leftCount() == 1 })
}

func TestHubEnforcesMaxClients(t *testing.T) {
	h := newHarness(t, input.DefaultConfig, Options{MaxClients: 1})
	h.dial(t, "")

	_, resp, err := websocket.DefaultDialer.Dial(h.url(""), nil)
	if err == nil {
		t.Fatalf("expected second dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %+v", resp)
	}
}

func TestHubRejectsUnknownEncoding(t *testing.T) {
	h := newHarness(t, input.DefaultConfig, Options{})
	_, resp, err := websocket.DefaultDialer.Dial(h.url("encoding=xml"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown encoding, got %v", err)
	}
}

func TestHubRequiresTokenWhenConfigured(t *testing.T) {
	authenticator, err := NewJWTAuthenticator("s3cret")
	if err != nil {
		t.Fatalf("NewJWTAuthenticator: %v", err)
	}
	h := newHarness(t, input.DefaultConfig, Options{Authenticator: authenticator})

	//1.- No token means 401 before the upgrade.
	_, resp, err := websocket.DefaultDialer.Dial(h.url(""), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	//2.- A signed token is accepted through the header.
	verifier, _ := auth.NewTokenVerifier("s3cret", 0)
	token, _ := verifier.Issue("pilot", time.Minute)
	conn, _, err := websocket.DefaultDialer.Dial(h.url(""), http.Header{"X-Auth-Token": []string{token}})
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	conn.Close()
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t, input.DefaultConfig, Options{AllowedOrigins: []string{"https://arena.example"}})
	_, resp, err := websocket.DefaultDialer.Dial(h.url(""), http.Header{"Origin": []string{"https://evil.example"}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(h.url(""), http.Header{"Origin": []string{"https://arena.example"}})
	if err != nil {
		t.Fatalf("expected allowed origin to connect: %v", err)
	}
	conn.Close()
}

func TestHubShutdownClosesSessions(t *testing.T) {
	h := newHarness(t, input.DefaultConfig, Options{})
	conn, _ := h.dial(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.hub.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to be closed")
	}
	if h.game.leftCount() != 1 {
		t.Fatalf("expected player to leave on shutdown")
	}
}

func TestWelcomeJSONShape(t *testing.T) {
	h := newHarness(t, input.DefaultConfig, Options{})
	conn, _, err := websocket.DefaultDialer.Dial(h.url(""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw.Event != "welcome" || raw.Data["id"] == "" || raw.Data["tankHeight"] != 0.5 {
		t.Fatalf("unexpected welcome %s", data)
	}
}
