/**
 * @description
 * Payment processing abstraction for promotion purchases. The real gateway
 * is out of scope; the engine only requires an awaited call with idempotent
 * commit semantics, keyed by a caller-supplied reference so a retried charge
 * is a no-op.
 */
package app

import (
	"context"
	"sync"
	"time"
)

// PaymentProcessor charges a user through the external payment rail.
// Implementations must be idempotent on reference.
type PaymentProcessor interface {
	Process(ctx context.Context, userID string, amount int64, reference string) error
}

// SimulatedPaymentProcessor stands in for the gateway round trip with a
// fixed, context-cancellable delay.
type SimulatedPaymentProcessor struct {
	delay time.Duration

	mu        sync.Mutex
	processed map[string]struct{}
}

// NewSimulatedPaymentProcessor creates a simulator with the given round-trip
// delay. A non-positive delay disables the wait.
func NewSimulatedPaymentProcessor(delay time.Duration) *SimulatedPaymentProcessor {
	return &SimulatedPaymentProcessor{
		delay:     delay,
		processed: make(map[string]struct{}),
	}
}

// Process waits out the simulated round trip and records the reference.
// A reference seen before returns immediately with success.
func (p *SimulatedPaymentProcessor) Process(ctx context.Context, userID string, amount int64, reference string) error {
	p.mu.Lock()
	if _, done := p.processed[reference]; done {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.mu.Lock()
	p.processed[reference] = struct{}{}
	p.mu.Unlock()
	return nil
}
