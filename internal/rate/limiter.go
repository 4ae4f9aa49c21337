package rate

import (
	"context"
	"fmt"
	"time"
)

// Limiter gates the per-item loop so we respect Gmail rate limits.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket implements a simple fixed-rate token bucket limiter.
type TokenBucket struct {
	ticker *time.Ticker
	tokens chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewTokenBucket returns a limiter that releases rps tokens per second.
func NewTokenBucket(rps int) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	tb := &TokenBucket{
		ticker: time.NewTicker(time.Second / time.Duration(rps)),
		tokens: make(chan struct{}, rps),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	// allow the first call to proceed immediately
	tb.tokens <- struct{}{}
	go tb.run()
	return tb
}

func (t *TokenBucket) run() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C:
			select {
			case t.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until a token is available or the context is canceled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-t.tokens:
		return nil
	}
}

// Stop releases resources held by the limiter.
func (t *TokenBucket) Stop() {
	t.ticker.Stop()
	close(t.stop)
	<-t.done
}

var _ Limiter = (*TokenBucket)(nil)

// Delay pauses a fixed interval before each item. It models the deliberate
// inter-item pause of the cleanup loop: cancellation stops the loop between
// items rather than interrupting one mid-mutation.
type Delay struct {
	d time.Duration
}

// NewDelay returns a limiter that sleeps d before every call. A
// non-positive duration waits not at all.
func NewDelay(d time.Duration) Delay {
	return Delay{d: d}
}

// Wait sleeps for the configured interval or returns early on cancellation.
func (d Delay) Wait(ctx context.Context) error {
	if d.d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d.d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

var _ Limiter = Delay{}
