package chainclient

import (
	"sync"
	"time"
)

// healthTracker implements a small circuit breaker over RPC call outcomes,
// grounded on the teacher's rpc.SimpleHealthTracker: 3 consecutive failures
// open the circuit, 2 consecutive successes close it. It supplements, but
// does not replace, the Supervisor's 30s health tick (spec §4.4) — a circuit
// opening early lets the Supervisor trigger reconnect before the next tick.
type healthTracker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	openWindow       time.Duration

	consecutiveFailures  int
	consecutiveSuccesses int
	circuitOpen          bool
	lastFailure          time.Time
}

func newHealthTracker() *healthTracker {
	return &healthTracker{
		failureThreshold: 3,
		successThreshold: 2,
		openWindow:       30 * time.Second,
	}
}

func (h *healthTracker) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.consecutiveSuccesses++
	if h.circuitOpen && h.consecutiveSuccesses >= h.successThreshold {
		h.circuitOpen = false
	}
}

func (h *healthTracker) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveSuccesses = 0
	h.consecutiveFailures++
	h.lastFailure = time.Now()
	if h.consecutiveFailures >= h.failureThreshold {
		h.circuitOpen = true
	}
}

// Healthy reports false only while the circuit is open and the open window
// has not yet elapsed.
func (h *healthTracker) healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.circuitOpen {
		return true
	}
	return time.Since(h.lastFailure) >= h.openWindow
}
