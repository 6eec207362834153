package ics

import (
	"github.com/Kopano-dev/kopano-core-sub010/internal/queue"
)

type subscriber struct {
	syncID uint32
	ch     *queue.QueuedChannel[uint64]
}

// Subscribe registers a cursor for post-commit change notifications. The
// returned channel carries the max change id visible after each commit and
// never blocks the committer.
func (l *ChangeLog) Subscribe(syncID uint32) <-chan uint64 {
	l.subLock.Lock()
	defer l.subLock.Unlock()

	if existing, ok := l.subscribers[syncID]; ok {
		return existing.ch.GetChannel()
	}

	sub := &subscriber{
		syncID: syncID,
		ch:     queue.NewQueuedChannel[uint64](1, 1),
	}

	l.subscribers[syncID] = sub

	return sub.ch.GetChannel()
}

func (l *ChangeLog) Unsubscribe(syncID uint32) {
	l.subLock.Lock()
	defer l.subLock.Unlock()

	if sub, ok := l.subscribers[syncID]; ok {
		sub.ch.Close()
		delete(l.subscribers, syncID)
	}
}

// NotifyCommitted fans a committed change out to every subscribed cursor
// except the one that originated it. Called by the transaction owner after
// its commit returns.
func (l *ChangeLog) NotifyCommitted(originSyncID uint32, maxChangeID uint64) {
	l.subLock.Lock()
	defer l.subLock.Unlock()

	for syncID, sub := range l.subscribers {
		if syncID == originSyncID {
			continue
		}

		sub.ch.Enqueue(maxChangeID)
	}
}

// CloseSubscribers shuts every notification channel down.
func (l *ChangeLog) CloseSubscribers() {
	l.subLock.Lock()
	defer l.subLock.Unlock()

	for syncID, sub := range l.subscribers {
		sub.ch.Close()
		delete(l.subscribers, syncID)
	}
}
