package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	l := NewKeyLock()

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.Lock("player-1")
			defer release()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestKeyLock_DifferentKeysIndependent(t *testing.T) {
	l := NewKeyLock()

	releaseA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		release := l.Lock("b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	releaseA()
}

func TestKeyLock_LockAllDeduplicates(t *testing.T) {
	l := NewKeyLock()

	release := l.LockAll("b", "a", "b", "")
	assert.Equal(t, 2, l.Len())
	release()
	assert.Equal(t, 0, l.Len())
}

func TestKeyLock_LockAllOppositeOrderNoDeadlock(t *testing.T) {
	l := NewKeyLock()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.LockAll("killer", "victim")()
		}()
		go func() {
			defer wg.Done()
			l.LockAll("victim", "killer")()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "deadlock")
	}
}
