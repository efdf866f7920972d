package dedup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsOrAdd_FirstCallerWins(t *testing.T) {
	idx := New()

	alreadyPresent := idx.ContainsOrAdd("0xaa")
	assert.False(t, alreadyPresent)

	alreadyPresent = idx.ContainsOrAdd("0xaa")
	assert.True(t, alreadyPresent)

	assert.Equal(t, 1, idx.Size())
}

func TestContainsOrAdd_ConcurrentSameHash_ExactlyOneWinner(t *testing.T) {
	idx := New()

	const goroutines = 50
	var wg sync.WaitGroup
	wins := make([]bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wins[i] = !idx.ContainsOrAdd("0xbb")
		}(i)
	}
	wg.Wait()

	winCount := 0
	for _, w := range wins {
		if w {
			winCount++
		}
	}
	require.Equal(t, 1, winCount, "exactly one caller must observe alreadyPresent == false")
}

func TestSeed_PopulatesFromTxStoreListing(t *testing.T) {
	idx := New()
	idx.Seed([]string{"0x1", "", "0x2", "0x1"})

	assert.Equal(t, 2, idx.Size())
	assert.True(t, idx.ContainsOrAdd("0x1"))
	assert.True(t, idx.ContainsOrAdd("0x2"))
	assert.False(t, idx.ContainsOrAdd("0x3"))
}
