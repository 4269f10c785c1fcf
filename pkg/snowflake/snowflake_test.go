package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode_RejectsOutOfRange(t *testing.T) {
	_, err := NewNode(-1)
	assert.ErrorIs(t, err, ErrInvalidNode)
	_, err = NewNode(1024)
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestGenerate_IncreasingAndDecodable(t *testing.T) {
	n, err := NewNode(7)
	require.NoError(t, err)

	before := time.Now().Add(-time.Millisecond)
	prev := n.Generate()
	for i := 0; i < 10000; i++ {
		id := n.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, int64(7), NodeOf(prev))
	assert.False(t, Time(prev).Before(before.Truncate(time.Millisecond)))
}

func TestGenerate_ClockBackwardsDoesNotRegress(t *testing.T) {
	n, err := NewNode(1)
	require.NoError(t, err)

	now := time.Now()
	n.now = func() time.Time { return now }
	first := n.Generate()

	n.now = func() time.Time { return now.Add(-time.Second) }
	second := n.Generate()
	assert.Greater(t, second, first)
}

func TestGenerate_ConcurrentUnique(t *testing.T) {
	n, err := NewNode(3)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := n.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 4000)
}
