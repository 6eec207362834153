package store

import (
	"sync"

	"github.com/Kopano-dev/kopano-core-sub010/async"
)

// Semaphore bounds how many attachment file operations run at once. It can
// additionally be blocked outright, which parks new operations until the
// store is ready for them again.
type Semaphore struct {
	slots chan struct{}
	wg    sync.WaitGroup
	gate  sync.RWMutex

	panicHandler async.PanicHandler
}

// NewSemaphore builds a semaphore admitting at most limit concurrent
// operations.
func NewSemaphore(limit int, panicHandler async.PanicHandler) *Semaphore {
	return &Semaphore{slots: make(chan struct{}, limit), panicHandler: panicHandler}
}

// Lock claims a slot, waiting for one to free up if necessary.
func (sem *Semaphore) Lock() {
	sem.gate.RLock()
	sem.slots <- struct{}{}
}

// Unlock releases a claimed slot.
func (sem *Semaphore) Unlock() {
	sem.gate.RUnlock()
	<-sem.slots
}

// Block parks new operations and waits for running ones to drain.
func (sem *Semaphore) Block() {
	sem.gate.Lock()
	sem.wg.Wait()
}

// Unblock admits operations again after Block.
func (sem *Semaphore) Unblock() {
	sem.gate.Unlock()
}

// Do runs fn synchronously under a slot.
func (sem *Semaphore) Do(fn func()) {
	sem.Lock()
	sem.wg.Add(1)

	defer sem.Unlock()
	defer sem.wg.Done()

	fn()
}

// Go runs fn on its own goroutine under a slot.
func (sem *Semaphore) Go(fn func()) {
	defer async.HandlePanic(sem.panicHandler)

	sem.Lock()
	sem.wg.Add(1)

	go func() {
		defer sem.Unlock()
		defer sem.wg.Done()

		fn()
	}()
}

// Wait blocks until every operation started with Go has finished.
func (sem *Semaphore) Wait() {
	sem.wg.Wait()
}
