// Package supervisor owns a single ChainClient's lifecycle: setup, health
// ticking, exponential-backoff reconnect, and graceful shutdown (spec §4.4),
// grounded on the teacher's WebSocketRPCClient.reconnect loop generalized
// from an inline goroutine into a standalone, testable component, plus the
// chainadapter circuit-breaker shape feeding the same decision.
package supervisor

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/chainclient"
)

const (
	healthTickInterval  = 30 * time.Second
	circuitPollInterval = 5 * time.Second
	backoffBase         = 2 * time.Second
	maxReconnectAttempt = 10
)

// Factory builds a fresh ChainClient, used to reconnect after a transport is
// torn down. Binding (bridge contract + event) is fixed at Factory
// construction, matching spec §4.4's "wire event subscriptions" setup step.
type Factory func(ctx context.Context) (chainclient.ChainClient, error)

// Supervisor runs the health tick + reconnect loop for one chain endpoint,
// re-subscribing handler against the newest ChainClient after every
// reconnect.
type Supervisor struct {
	name    string
	factory Factory
	handler chainclient.EventHandler
	log     *zap.SugaredLogger

	mu      sync.Mutex
	client  chainclient.ChainClient
	cancel  func()
	stopped bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Supervisor. name is a human-readable chain tag ("L1",
// "L2") used only in log fields.
func New(name string, factory Factory, handler chainclient.EventHandler, log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		name:    name,
		factory: factory,
		handler: handler,
		log:     log,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start performs initial setup (spec §4.4 step 1) then runs the health tick
// loop (step 2) until Stop is called or the reconnect cap (step 3) is hit.
// Between the 30s BlockNumber ticks, a 5s circuit-breaker poll consults the
// ChainClient's Healthy() readout so a circuit opened by Relayer/Ingestor
// traffic triggers reconnect without waiting for the next tick. Start blocks
// the calling goroutine; callers typically run it in its own goroutine per
// chain.
func (s *Supervisor) Start(ctx context.Context) {
	defer close(s.doneCh)

	if !s.connect(ctx) {
		s.log.Errorw("initial setup failed, halting supervisor", "chain", s.name)
		return
	}

	ticker := time.NewTicker(healthTickInterval)
	defer ticker.Stop()
	circuitTicker := time.NewTicker(circuitPollInterval)
	defer circuitTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return
		case <-s.stopCh:
			s.teardown()
			return
		case <-circuitTicker.C:
			s.mu.Lock()
			client := s.client
			s.mu.Unlock()
			if client == nil || client.Healthy() {
				continue
			}
			s.log.Warnw("circuit breaker open, reconnecting ahead of next health tick", "chain", s.name)
			if !s.reconnectWithBackoff(ctx) {
				return
			}
		case <-ticker.C:
			s.mu.Lock()
			client := s.client
			s.mu.Unlock()
			if client == nil {
				continue
			}
			if _, err := client.BlockNumber(ctx); err != nil {
				s.log.Warnw("health tick failed, reconnecting", "chain", s.name, "err", err)
				if !s.reconnectWithBackoff(ctx) {
					return
				}
			}
		}
	}
}

// Stop requests graceful shutdown (spec §4.4 step 5): stop the health
// ticker, unsubscribe, and close the transport. Idempotent; blocks until
// Start has returned.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

func (s *Supervisor) connect(ctx context.Context) bool {
	client, err := s.factory(ctx)
	if err != nil {
		s.log.Errorw("failed to construct chain client", "chain", s.name, "err", err)
		return false
	}

	cancel, err := client.Subscribe(ctx, s.handler)
	if err != nil {
		s.log.Warnw("subscribe unsupported or failed, streaming path disabled; backfiller remains authoritative", "chain", s.name, "err", err)
		cancel = func() {}
	}

	s.mu.Lock()
	s.client = client
	s.cancel = cancel
	s.mu.Unlock()
	return true
}

func (s *Supervisor) teardown() {
	s.mu.Lock()
	cancel := s.cancel
	client := s.client
	s.client = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		if err := client.Close(); err != nil {
			s.log.Warnw("error closing chain client during shutdown", "chain", s.name, "err", err)
		}
	}
}

// reconnectWithBackoff retries setup with base 2s, exponent = attempt count
// (2, 4, 8, ... seconds), capped at 10 attempts (spec §4.4 step 3 / §8
// "backoff schedule"). Returns false if the cap was reached (supervisor
// halts; the other chain's supervisor is unaffected) or if Stop/ctx
// cancellation interrupted the wait.
func (s *Supervisor) reconnectWithBackoff(ctx context.Context) bool {
	s.teardown()

	for attempt := 1; attempt <= maxReconnectAttempt; attempt++ {
		delay := backoffDelay(attempt)

		select {
		case <-ctx.Done():
			return false
		case <-s.stopCh:
			return false
		case <-time.After(delay):
		}

		if s.connect(ctx) {
			s.log.Infow("reconnected", "chain", s.name, "attempt", attempt)
			return true
		}
		s.log.Warnw("reconnect attempt failed", "chain", s.name, "attempt", attempt, "delay", delay)
	}

	s.log.Errorw("reconnect attempts exhausted, halting supervisor for this chain", "chain", s.name, "attempts", maxReconnectAttempt)
	return false
}

// backoffDelay computes the delay before the n-th (1-indexed) reconnect
// attempt: base 2s, exponent = attempt count (2, 4, 8, ... seconds), per
// spec §4.4 step 3 / §8 "backoff schedule".
func backoffDelay(attempt int) time.Duration {
	return time.Duration(float64(backoffBase) * math.Pow(2, float64(attempt-1)))
}
