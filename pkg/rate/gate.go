package rate

import (
	"context"

	"golang.org/x/time/rate"
)

// Priority hints how urgent an acquisition is. Interactively triggered
// requests should not sit behind a backlog of bulk work.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityInteractive
)

// Gate paces outbound calls to a shared upstream. Acquire blocks until a
// token is available, or returns the context error if the caller gives up
// first.
type Gate interface {
	Acquire(ctx context.Context, priority Priority) error
}

type tokenGate struct {
	limiter *rate.Limiter
}

// NewTokenGate returns an in memory token bucket gate.
func NewTokenGate(limit rate.Limit, burst int) Gate {
	return &tokenGate{
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Acquire implements Gate.Acquire.
func (g *tokenGate) Acquire(ctx context.Context, priority Priority) error {
	// Interactive callers may claim an available token ahead of queued
	// waiters. When the bucket is drained they wait like everyone else.
	if priority == PriorityInteractive && g.limiter.Allow() {
		return nil
	}

	return g.limiter.Wait(ctx)
}

// NoGate never paces.
type NoGate struct {
}

// Acquire implements Gate.Acquire.
func (n *NoGate) Acquire(ctx context.Context, priority Priority) error {
	return ctx.Err()
}
