package match

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Run drives the session: it waits for both participants, waits the
// pre-game delay, starts the game and ticks until the session ends or
// ctx is cancelled. Cancelling ctx abandons the session without a result.
func (e *Engine) Run(ctx context.Context) {
	select {
	case <-e.ready:
	case <-e.done:
		return
	case <-ctx.Done():
		return
	}

	select {
	case <-e.clock.After(e.cfg.StartDelay):
	case <-e.done:
		return
	case <-ctx.Done():
		return
	}

	if !e.Start() {
		return
	}

	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.Chan():
			if !e.safeTick(now) {
				return
			}
		case <-e.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// safeTick runs one tick, converting a panic into an internal_error end
// so a fault stays inside this session.
func (e *Engine) safeTick(now time.Time) (running bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tick panicked", slog.String("panic", fmt.Sprint(r)))
			e.fail()
			running = false
		}
	}()
	return e.Tick(now)
}
