package visited

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	set := New()

	assert.NotNil(t, set)
	assert.NotNil(t, set.items)
	assert.Equal(t, 0, set.Len())
}

func TestSet_TryClaim(t *testing.T) {
	set := New()

	assert.True(t, set.TryClaim("https://example.test/"))
	assert.False(t, set.TryClaim("https://example.test/"))
	assert.True(t, set.TryClaim("https://example.test/catalogue/page-1.html"))

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, StatePending, set.State("https://example.test/"))
	assert.Equal(t, StateUnknown, set.State("https://example.test/never"))
}

func TestSet_MarkDone(t *testing.T) {
	tests := []struct {
		name     string
		claim    bool
		markOnce bool
		expected bool
		state    State
	}{
		{name: "pending_to_done", claim: true, expected: true, state: StateDone},
		{name: "already_done", claim: true, markOnce: true, expected: false, state: StateDone},
		{name: "never_claimed", claim: false, expected: false, state: StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := New()
			const url = "https://example.test/a.html"
			if tt.claim {
				require.True(t, set.TryClaim(url))
			}
			if tt.markOnce {
				require.True(t, set.MarkDone(url))
			}

			assert.Equal(t, tt.expected, set.MarkDone(url))
			assert.Equal(t, tt.state, set.State(url))
		})
	}
}

func TestSet_DoneURLCannotBeReclaimed(t *testing.T) {
	set := New()
	require.True(t, set.TryClaim("u"))
	require.True(t, set.MarkDone("u"))

	assert.False(t, set.TryClaim("u"))
	assert.Equal(t, StateDone, set.State("u"))
}

func TestSet_ConcurrentClaimSameURL(t *testing.T) {
	set := New()
	const numGoroutines = 200

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			if set.TryClaim("https://example.test/contested") {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 1, set.Len())
}

func TestSet_ConcurrentDistinctURLs(t *testing.T) {
	set := New()
	const numGoroutines = 50
	const numURLs = 100

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < numURLs; j++ {
				if set.TryClaim(fmt.Sprintf("https://example.test/%d", j)) {
					winners.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(numURLs), winners.Load())
	assert.Equal(t, numURLs, set.Len())
}

func TestSet_Keys(t *testing.T) {
	set := New()
	assert.Empty(t, set.Keys())

	set.TryClaim("https://example.test/a")
	set.TryClaim("https://example.test/b")
	set.TryClaim("https://example.test/a")
	set.MarkDone("https://example.test/b")

	assert.ElementsMatch(t, []string{"https://example.test/a", "https://example.test/b"}, set.Keys())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown", StateUnknown.String())
}

func BenchmarkSet_TryClaim(b *testing.B) {
	set := New()
	for i := 0; i < b.N; i++ {
		set.TryClaim(fmt.Sprintf("https://example.test/%d", i))
	}
}
