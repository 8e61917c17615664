package bots

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPLauncherScale(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		//1.- Ensure the controller posts the requested target payload.
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var payload scaleRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.Target != 7 {
			t.Errorf("expected target 7, got %d", payload.Target)
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"running": 6})
	}))
	defer server.Close()

	launcher, err := NewHTTPLauncher(server.URL, server.Client())
	if err != nil {
		t.Fatalf("launcher init: %v", err)
	}
	count, err := launcher.Scale(context.Background(), 7)
	if err != nil {
		t.Fatalf("scale: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected running count 6, got %d", count)
	}
}

func TestHTTPLauncherErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	launcher, err := NewHTTPLauncher(server.URL, server.Client())
	if err != nil {
		t.Fatalf("launcher init: %v", err)
	}
	if _, err := launcher.Scale(context.Background(), 3); err == nil {
		t.Fatal("expected error from non-2xx response")
	}
}

func TestScaleHandlerDrivesRemoteLauncher(t *testing.T) {
	remote := &fakeLauncher{result: -1}
	server := httptest.NewServer(ScaleHandler(remote))
	defer server.Close()

	launcher, err := NewHTTPLauncher(server.URL, server.Client())
	if err != nil {
		t.Fatalf("launcher init: %v", err)
	}
	//1.- A controller on one host scales the runner on another.
	controller := newTestController(4, launcher)
	if err := controller.ObserveClients(context.Background(), 1); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if snap := controller.Snapshot(); snap.Bots != 3 {
		t.Fatalf("expected three remote bots, got %+v", snap)
	}

	resp, err := server.Client().Post(server.URL, "application/json", strings.NewReader(`{"target":-2}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a negative target, got %d", resp.StatusCode)
	}
	resp, err = server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", resp.StatusCode)
	}
}

func TestStatsClientsReadsClientCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"clients":4,"spectators":1}`))
	}))
	defer server.Close()

	count, err := StatsClients(server.URL+"/api/stats", server.Client())(context.Background())
	if err != nil || count != 4 {
		t.Fatalf("expected 4 clients, got %d (%v)", count, err)
	}
	if _, err := StatsClients(server.URL+"/empty", server.Client())(context.Background()); err == nil {
		t.Fatal("expected a document without clients to fail")
	}
}
