// Command pinger keeps a hosted world server awake by polling its status
// endpoint on an interval.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/talgya/cytophage/internal/pinger"
)

func main() {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))

	// Configuration from environment.
	apiURL := envOrDefault("WORLDSIM_API_URL", "http://localhost:8080")
	intervalSec := envIntOrDefault("PINGER_INTERVAL", 300)
	interval := time.Duration(intervalSec) * time.Second

	slog.Info("Cytophage pinger starting", "api_url", apiURL, "interval", interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pinger.New(apiURL)

	// The server may still be loading its world.
	slog.Info("waiting for worldsim API...")
	if err := p.WaitForAPI(ctx, 5*time.Minute); err != nil {
		slog.Error("giving up", "error", err)
		os.Exit(1)
	}

	p.Run(ctx, interval)
	slog.Info("pinger stopped")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}
