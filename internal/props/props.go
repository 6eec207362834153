// Package props writes object properties through a single chokepoint that
// keeps the per-folder table mirror in sync with the row store. Call sites
// never touch the mirror directly.
package props

import (
	"context"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"golang.org/x/exp/maps"
)

// listedTags are the tags mirrored into the parent folder's table rows so
// folder listings never have to join the row store.
var listedTags = map[mapi.PropTag]struct{}{
	mapi.PropTagMessageFlags:         {},
	mapi.PropTagMessageSize:          {},
	mapi.PropTagContentCount:         {},
	mapi.PropTagContentUnread:        {},
	mapi.PropTagAssocContentCount:    {},
	mapi.PropTagFolderChildCount:     {},
	mapi.PropTagDeletedMsgCount:      {},
	mapi.PropTagDeletedFolderCount:   {},
	mapi.PropTagDeletedAssocMsgCount: {},
	mapi.PropTagDeletedOn:            {},
	mapi.PropTagSourceKey:            {},
}

func IsListed(tag mapi.PropTag) bool {
	_, ok := listedTags[tag]

	return ok
}

// ListedTags returns the mirrored tags, for callers that need to rebuild an
// object's table row from the row store.
func ListedTags() []mapi.PropTag {
	return maps.Keys(listedTags)
}

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Write upserts the property in the row store and, when the tag participates
// in table views and the object has a parent folder, mirrors it into the
// folder's table row. folderID is the object's parent, zero when the object
// is a store.
func (Store) Write(ctx context.Context, tx db.Transaction, folderID mapi.ObjectID, prop db.Property) error {
	if err := tx.UpsertProperty(ctx, prop); err != nil {
		return err
	}

	if folderID == 0 || !IsListed(prop.Tag) {
		return nil
	}

	return tx.UpsertTableProperty(ctx, folderID, prop)
}

// WriteMany writes a batch of properties for one object.
func (s Store) WriteMany(ctx context.Context, tx db.Transaction, folderID mapi.ObjectID, props []db.Property) error {
	for _, prop := range props {
		if err := s.Write(ctx, tx, folderID, prop); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes the property from the row store. Table mirror rows are only
// ever removed wholesale when the owning object is hard deleted.
func (Store) Delete(ctx context.Context, tx db.Transaction, objectID mapi.ObjectID, tag mapi.PropTag) error {
	return tx.DeleteProperty(ctx, objectID, tag)
}
