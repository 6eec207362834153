package watcher

import (
	"reflect"

	"github.com/Kopano-dev/kopano-core-sub010/internal/queue"
)

// Watcher delivers events of the watched types to a single consumer without
// ever blocking the publisher.
type Watcher[T any] struct {
	types   map[reflect.Type]struct{}
	eventCh *queue.QueuedChannel[T]
}

// New returns a watcher for the given event types. Watching no types at all
// means watching everything.
func New[T any](ofType ...T) *Watcher[T] {
	types := make(map[reflect.Type]struct{}, len(ofType))

	for _, t := range ofType {
		types[reflect.TypeOf(t)] = struct{}{}
	}

	return &Watcher[T]{
		types:   types,
		eventCh: queue.NewQueuedChannel[T](1, 1),
	}
}

func (w *Watcher[T]) IsWatching(event T) bool {
	if len(w.types) == 0 {
		return true
	}

	_, ok := w.types[reflect.TypeOf(event)]

	return ok
}

func (w *Watcher[T]) GetChannel() <-chan T {
	return w.eventCh.GetChannel()
}

func (w *Watcher[T]) Send(event T) bool {
	return w.eventCh.Enqueue(event)
}

func (w *Watcher[T]) Close() {
	w.eventCh.Close()
}
