package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_MatchesDoublingSchedule(t *testing.T) {
	// spec §8: "the n-th consecutive failure (1-indexed), the next attempt
	// is scheduled at 2 * 2^(n-1) seconds".
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 1024 * time.Second},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, backoffDelay(c.attempt))
	}
}

func TestMaxReconnectAttempt_IsTen(t *testing.T) {
	assert.Equal(t, 10, maxReconnectAttempt)
}
