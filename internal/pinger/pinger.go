// Package pinger implements the external keep-alive client. It polls the
// world's status endpoint on an interval so hosting platforms that idle
// quiet services keep the simulation awake, and logs what it sees.
package pinger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WorldStatus mirrors GET /api/v1/status.
type WorldStatus struct {
	Name       string  `json:"name"`
	WorldID    string  `json:"world_id"`
	Rules      string  `json:"rules"`
	Tick       uint64  `json:"tick"`
	SimTime    string  `json:"sim_time"`
	Speed      float64 `json:"speed"`
	Running    bool    `json:"running"`
	Population int     `json:"population"`
	Clans      int     `json:"clans"`
	Food       int     `json:"food"`
}

// Pinger polls a world server.
type Pinger struct {
	BaseURL    string
	HTTPClient *http.Client

	last     uint64
	failures int
}

// New creates a Pinger targeting the given API base URL.
func New(baseURL string) *Pinger {
	return &Pinger{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping fetches the status once.
func (p *Pinger) Ping(ctx context.Context) (*WorldStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/v1/status", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET status returned %d: %s", resp.StatusCode, string(body))
	}

	var st WorldStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

// WaitForAPI polls with exponential backoff until the status endpoint
// answers or maxWait elapses.
func (p *Pinger) WaitForAPI(ctx context.Context, maxWait time.Duration) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(maxWait)

	for {
		if _, err := p.Ping(ctx); err == nil {
			slog.Info("worldsim API is ready")
			return nil
		} else if time.Now().After(deadline) {
			return fmt.Errorf("worldsim API not ready after %s: %w", maxWait, err)
		}
		slog.Info("worldsim not ready, retrying...", "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Check pings once and logs the outcome. A tick that has not advanced
// since the previous check is reported as stalled.
func (p *Pinger) Check(ctx context.Context) {
	st, err := p.Ping(ctx)
	if err != nil {
		p.failures++
		slog.Error("ping failed", "error", err, "consecutive_failures", p.failures)
		return
	}
	p.failures = 0

	if p.last != 0 && st.Tick == p.last && st.Running && st.Speed > 0 {
		slog.Warn("world tick has not advanced", "tick", st.Tick)
	}
	p.last = st.Tick

	slog.Info("ping ok",
		"tick", st.Tick,
		"sim_time", st.SimTime,
		"population", st.Population,
		"clans", st.Clans,
		"food", st.Food,
	)
}

// Run checks on every interval until ctx is cancelled.
func (p *Pinger) Run(ctx context.Context, interval time.Duration) {
	p.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Failures returns the number of consecutive failed pings.
func (p *Pinger) Failures() int {
	return p.failures
}
