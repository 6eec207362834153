package kopano

import (
	"github.com/Kopano-dev/kopano-core-sub010/events"
	"github.com/Kopano-dev/kopano-core-sub010/watcher"
	"github.com/sirupsen/logrus"
)

// AddWatcher returns a channel of events of the given types, or of all
// events when none are given. The channel stays open until the server is
// closed.
func (s *Server) AddWatcher(ofType ...events.Event) <-chan events.Event {
	s.watchersLock.Lock()
	defer s.watchersLock.Unlock()

	w := watcher.New(ofType...)

	s.watchers[w] = struct{}{}

	return w.GetChannel()
}

// Publish fans an event out to every watcher interested in its type.
func (s *Server) Publish(event events.Event) {
	s.watchersLock.RLock()
	defer s.watchersLock.RUnlock()

	for w := range s.watchers {
		if w.IsWatching(event) {
			if ok := w.Send(event); !ok {
				logrus.Errorf("Failed to send event to watcher: %v", event)
			}
		}
	}
}
