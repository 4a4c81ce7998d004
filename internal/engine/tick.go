// Package engine provides the world simulation and the fixed-interval loop
// that drives it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Engine drives the simulation forward on a fixed wall-clock interval.
// Ticks never overlap: a slow tick delays the next one.
type Engine struct {
	Interval time.Duration // Base tick interval

	// Callbacks populated during setup. All run on the loop goroutine.
	OnTick    func(tick uint64) // Every tick
	OnSave    func(tick uint64) // Every SaveEvery ticks
	OnHistory func(tick uint64) // Every HistoryEvery ticks
	OnYear    func(tick uint64) // Every TicksPerYear ticks

	SaveEvery    uint64
	HistoryEvery uint64
	TicksPerYear uint64

	mu      sync.Mutex
	tick    uint64  // Current tick counter (monotonic, never resets)
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running bool
	cancel  context.CancelFunc
}

// NewEngine creates an engine starting after tick.
func NewEngine(interval time.Duration, tick uint64) *Engine {
	return &Engine{
		Interval: interval,
		tick:     tick,
		speed:    1.0,
	}
}

// Run starts the loop. Blocks until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed(), "interval", e.Interval)

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		slog.Info("simulation engine stopped", "tick", e.Tick())
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused, check again shortly.
			timer.Reset(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		target := time.Duration(float64(e.Interval) / speed)
		wait := target - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Stop halts the loop after the current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Tick returns the last completed tick.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. 0 pauses the loop.
func (e *Engine) SetSpeed(speed float64) error {
	if speed < 0 || speed > 100 {
		return fmt.Errorf("speed %g out of range [0, 100]", speed)
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
	slog.Info("simulation speed changed", "speed", speed)
	return nil
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// step advances the simulation by one tick.
func (e *Engine) step() {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	e.mu.Unlock()

	if e.OnTick != nil {
		e.OnTick(tick)
	}
	if e.SaveEvery > 0 && tick%e.SaveEvery == 0 && e.OnSave != nil {
		e.OnSave(tick)
	}
	if e.HistoryEvery > 0 && tick%e.HistoryEvery == 0 && e.OnHistory != nil {
		e.OnHistory(tick)
	}
	if e.TicksPerYear > 0 && tick%e.TicksPerYear == 0 && e.OnYear != nil {
		e.OnYear(tick)
	}
}

// SimTime renders a tick count as simulated years and days.
func SimTime(tick uint64, ticksPerYear float64) string {
	if ticksPerYear <= 0 {
		return fmt.Sprintf("tick %d", tick)
	}
	years := float64(tick) / ticksPerYear
	whole := int(years)
	day := int((years-float64(whole))*365) + 1
	return fmt.Sprintf("Year %d Day %d", whole+1, day)
}
