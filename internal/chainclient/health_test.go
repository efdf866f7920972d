package chainclient

import "testing"

func TestHealthTracker_OpensAfterThreeConsecutiveFailures(t *testing.T) {
	h := newHealthTracker()

	if !h.healthy() {
		t.Fatal("tracker should start healthy")
	}

	h.recordFailure()
	h.recordFailure()
	if !h.healthy() {
		t.Fatal("circuit should remain closed under threshold")
	}
	h.recordFailure()
	if h.healthy() {
		t.Fatal("circuit should open at the failure threshold")
	}
}

func TestHealthTracker_SuccessResetsFailureStreak(t *testing.T) {
	h := newHealthTracker()

	h.recordFailure()
	h.recordFailure()
	h.recordSuccess()
	h.recordFailure()
	h.recordFailure()
	if !h.healthy() {
		t.Fatal("a success should reset the consecutive failure streak")
	}
}
