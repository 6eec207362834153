package cascade

import (
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

// DeleteItem is one row of an expanded deletion. It lives only for the
// duration of the delete operation.
type DeleteItem struct {
	ID         mapi.ObjectID
	ParentID   mapi.ObjectID
	Type       mapi.ObjectType
	ParentType mapi.ObjectType
	Flags      mapi.ObjectFlags

	ObjectSize    int64
	MessageFlags  mapi.MessageFlags
	IsRoot        bool
	InSubmitQueue bool

	SourceKey       mapi.SourceKey
	ParentSourceKey mapi.SourceKey

	// StoreID is the store the item lives in, used for the store size
	// aggregate. Zero when the item is itself a store.
	StoreID mapi.ObjectID
}

func (i DeleteItem) deleted() bool {
	return i.Flags.Has(mapi.ObjectFlagDeleted)
}

func (i DeleteItem) associated() bool {
	return i.Flags.Has(mapi.ObjectFlagAssociated)
}

func (i DeleteItem) unread() bool {
	return !i.MessageFlags.Has(mapi.MsgFlagRead)
}

// topLevel reports the items whose parent is not itself being deleted. Only
// these adjust their parent folder's counters, contribute change records and
// table notifications; deeper descendants disappear with their parents.
func topLevel(items []DeleteItem) []DeleteItem {
	doomed := make(map[mapi.ObjectID]struct{}, len(items))

	for _, item := range items {
		doomed[item.ID] = struct{}{}
	}

	var top []DeleteItem

	for _, item := range items {
		if _, ok := doomed[item.ParentID]; !ok {
			top = append(top, item)
		}
	}

	return top
}

// counterDeltas computes the per-folder counter adjustments for the given
// top-level items. Soft delete moves live items into the deleted counters;
// hard delete removes them from whichever counter currently holds them.
func counterDeltas(items []DeleteItem, hard bool) map[mapi.ObjectID]mapi.CounterDeltas {
	batch := make(map[mapi.ObjectID]mapi.CounterDeltas)

	for _, item := range items {
		if item.ParentType != mapi.ObjectTypeFolder {
			continue
		}

		deltas := batch[item.ParentID]

		switch item.Type {
		case mapi.ObjectTypeMessage:
			switch {
			case item.deleted():
				if !hard {
					break
				}

				if item.associated() {
					deltas.Add(mapi.CounterDeletedAssocMessages, -1)
				} else {
					deltas.Add(mapi.CounterDeletedMessages, -1)
				}

			case item.associated():
				deltas.Add(mapi.CounterAssocContents, -1)

				if !hard {
					deltas.Add(mapi.CounterDeletedAssocMessages, 1)
				}

			default:
				deltas.Add(mapi.CounterContents, -1)

				if item.unread() {
					deltas.Add(mapi.CounterUnread, -1)
				}

				if !hard {
					deltas.Add(mapi.CounterDeletedMessages, 1)
				}
			}

		case mapi.ObjectTypeFolder:
			if item.deleted() {
				if hard {
					deltas.Add(mapi.CounterDeletedFolders, -1)
				}
			} else {
				deltas.Add(mapi.CounterSubfolders, -1)

				if !hard {
					deltas.Add(mapi.CounterDeletedFolders, 1)
				}
			}
		}

		if deltas.IsZero() {
			delete(batch, item.ParentID)
		} else {
			batch[item.ParentID] = deltas
		}
	}

	return batch
}

// deleteChangeKind maps a top-level item to the change record it owes, or
// false when the item is not trackable (attachments, recipients, stores,
// search folders).
func deleteChangeKind(item DeleteItem, hard bool) (mapi.ChangeType, bool) {
	switch item.Type {
	case mapi.ObjectTypeMessage:
		if hard {
			return mapi.ChangeMessageHardDelete, true
		}

		return mapi.ChangeMessageSoftDelete, true

	case mapi.ObjectTypeFolder:
		if item.Flags.Has(mapi.ObjectFlagSearchFolder) {
			return 0, false
		}

		if hard {
			return mapi.ChangeFolderHardDelete, true
		}

		return mapi.ChangeFolderSoftDelete, true

	default:
		return 0, false
	}
}
