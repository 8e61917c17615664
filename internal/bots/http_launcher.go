package bots

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxScaleBody = 1 << 10

type scaleRequest struct {
	Target int `json:"target"`
}

type scaleResponse struct {
	Running int `json:"running"`
}

// HTTPLauncher scales a remote bot runner that serves ScaleHandler.
type HTTPLauncher struct {
	client   *http.Client
	endpoint string
}

// NewHTTPLauncher wires an HTTP client to the remote bot runner endpoint.
func NewHTTPLauncher(endpoint string, client *http.Client) (*HTTPLauncher, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint must not be empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLauncher{endpoint: endpoint, client: client}, nil
}

// Scale relays the requested bot population to the remote runner.
func (l *HTTPLauncher) Scale(ctx context.Context, target int) (int, error) {
	if l == nil {
		return 0, errors.New("launcher is nil")
	}
	if target < 0 {
		return 0, errors.New("target must be non-negative")
	}
	body, err := json.Marshal(scaleRequest{Target: target})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := l.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send scale request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("launcher responded with status %s", resp.Status)
	}
	decoded := scaleResponse{Running: -1}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	//1.- Trust the remote count; fall back to the request when it is omitted.
	if decoded.Running >= 0 {
		return decoded.Running, nil
	}
	return target, nil
}

// ScaleHandler exposes launcher to HTTPLauncher clients: POST {"target":n}
// answers {"running":m}.
func ScaleHandler(launcher Launcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req scaleRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxScaleBody)).Decode(&req); err != nil || req.Target < 0 {
			http.Error(w, "invalid scale request", http.StatusBadRequest)
			return
		}
		running, err := launcher.Scale(r.Context(), req.Target)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(scaleResponse{Running: running})
	})
}

// StatsClients returns a poller reading the client count from the server's
// /api/stats document.
func StatsClients(statsURL string, client *http.Client) func(context.Context) (int, error) {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL, nil)
		if err != nil {
			return 0, fmt.Errorf("create stats request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, fmt.Errorf("fetch stats: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("stats responded with status %s", resp.Status)
		}
		var stats struct {
			Clients *int `json:"clients"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return 0, fmt.Errorf("decode stats: %w", err)
		}
		if stats.Clients == nil {
			return 0, errors.New("stats document has no client count")
		}
		return *stats.Clients, nil
	}
}
