package store

import (
	"sync"
	"testing"

	"github.com/Kopano-dev/kopano-core-sub010/async"
	"github.com/stretchr/testify/require"
)

func TestSemaphore_BlockParksWork(t *testing.T) {
	sem := NewSemaphore(2, async.NoopPanicHandler{})

	var (
		mut sync.Mutex
		got []int
	)

	record := func(n int) func() {
		return func() {
			mut.Lock()
			defer mut.Unlock()

			got = append(got, n)
		}
	}

	sem.Block()

	var submitted sync.WaitGroup

	submitted.Add(1)

	go func() {
		defer submitted.Done()

		for n := 1; n <= 4; n++ {
			sem.Go(record(n))
		}
	}()

	// Nothing may run while the semaphore is blocked.
	mut.Lock()
	require.Empty(t, got)
	mut.Unlock()

	sem.Unblock()
	submitted.Wait()
	sem.Wait()

	require.ElementsMatch(t, []int{1, 2, 3, 4}, got)
}

func TestSemaphore_DoRunsInline(t *testing.T) {
	sem := NewSemaphore(1, async.NoopPanicHandler{})

	var ran bool

	sem.Do(func() { ran = true })

	require.True(t, ran)
}
