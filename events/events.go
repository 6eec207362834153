// Package events defines the notifications the server publishes after a
// transaction commits. The search folder sink and in-process table caches
// subscribe to these through Server.AddWatcher.
package events

import "github.com/Kopano-dev/kopano-core-sub010/mapi"

type Event interface {
	_isEvent()
}

type eventBase struct{}

func (eventBase) _isEvent() {}

// ObjectsDeleted invalidates object and identity caches for removed ids.
type ObjectsDeleted struct {
	eventBase

	IDs  []mapi.ObjectID
	Hard bool
}

// TableRowDeleted reports the removal of a single row from a folder's
// content table.
type TableRowDeleted struct {
	eventBase

	FolderID mapi.ObjectID
	ObjectID mapi.ObjectID
}

// TableChanged coalesces many row removals in one folder into a single
// signal; consumers must reload the table.
type TableChanged struct {
	eventBase

	FolderID mapi.ObjectID
}

// ChangesCommitted tells subscribed sync cursors that new change records are
// visible.
type ChangesCommitted struct {
	eventBase

	MaxChangeID uint64
}
