package reconcile

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex(t *testing.T) {
	t.Parallel()

	t.Run("serializes holders of the same key", func(t *testing.T) {
		t.Parallel()

		km := newKeyedMutex()
		var active, maxActive int32
		var wg sync.WaitGroup

		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := km.Lock("ref_1")
				defer unlock()

				cur := atomic.AddInt32(&active, 1)
				for {
					seen := atomic.LoadInt32(&maxActive)
					if cur <= seen || atomic.CompareAndSwapInt32(&maxActive, seen, cur) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	})

	t.Run("different keys do not block each other", func(t *testing.T) {
		t.Parallel()

		km := newKeyedMutex()
		unlockA := km.Lock("ref_a")
		defer unlockA()

		done := make(chan struct{})
		go func() {
			unlockB := km.Lock("ref_b")
			unlockB()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("lock on an unrelated key blocked")
		}
	})

	t.Run("releases key state when the last holder unlocks", func(t *testing.T) {
		t.Parallel()

		km := newKeyedMutex()
		unlock := km.Lock("ref_1")
		unlock()

		km.mu.Lock()
		remaining := len(km.locks)
		km.mu.Unlock()
		require.Zero(t, remaining)
	})
}
