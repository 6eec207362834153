package cascade

import (
	"context"
	"fmt"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/metrics"
	"github.com/Kopano-dev/kopano-core-sub010/reporter"
	"github.com/Kopano-dev/kopano-core-sub010/security"
	"github.com/sirupsen/logrus"
)

// Expand walks the hierarchy width-first from the given roots and produces
// the flat, deduplicated list of items the flag mask allows to be deleted.
// Validation and permission errors abort with no partial state; corrupt rows
// (missing parent or unknown type) are skipped and counted.
func (c *Cascade) Expand(ctx context.Context, tx db.Transaction, rootIDs []mapi.ObjectID, flags mapi.DeleteFlags) ([]DeleteItem, error) {
	// Rights are checked before any row is touched.
	for _, id := range rootIDs {
		if err := c.security.CheckPermission(ctx, id, security.RightDeleteAny); err != nil {
			return nil, err
		}
	}

	roots := make([]*db.Object, 0, len(rootIDs))

	for _, id := range rootIDs {
		object, err := tx.GetObject(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load delete root %v: %w", id, err)
		}

		if object.Type == mapi.ObjectTypeStore && !flags.Has(mapi.DeleteStore) {
			return nil, fmt.Errorf("%w: store %v cannot be deleted without the store flag", mapi.ErrInvalidParameter, id)
		}

		roots = append(roots, object)
	}

	// Counter rows lock before hierarchy rows.
	if err := tx.LockFolderCounters(ctx, parentFolderIDs(roots)); err != nil {
		return nil, err
	}

	if err := tx.LockObjects(ctx, rootIDs); err != nil {
		return nil, err
	}

	var (
		items   []DeleteItem
		visited = make(map[mapi.ObjectID]struct{})
	)

	for _, root := range roots {
		storeID, err := c.resolveStore(ctx, tx, root)
		if err != nil {
			return nil, err
		}

		rootItems, err := c.expandRoot(ctx, tx, root, storeID, flags, visited)
		if err != nil {
			return nil, err
		}

		items = append(items, rootItems...)
	}

	return items, nil
}

func parentFolderIDs(roots []*db.Object) []mapi.ObjectID {
	var ids []mapi.ObjectID

	for _, root := range roots {
		if root.ParentID != 0 {
			ids = append(ids, root.ParentID)
		}
	}

	return ids
}

// resolveStore walks up to the store the object lives in; zero when the
// object is itself a store.
func (c *Cascade) resolveStore(ctx context.Context, tx db.Transaction, object *db.Object) (mapi.ObjectID, error) {
	if object.Type == mapi.ObjectTypeStore {
		return 0, nil
	}

	id := object.ParentID

	for id != 0 {
		parent, err := tx.GetObject(ctx, id)
		if err != nil {
			return 0, err
		}

		if parent.Type == mapi.ObjectTypeStore {
			return parent.ID, nil
		}

		id = parent.ParentID
	}

	return 0, nil
}

func (c *Cascade) expandRoot(ctx context.Context, tx db.Transaction, root *db.Object, storeID mapi.ObjectID, flags mapi.DeleteFlags, visited map[mapi.ObjectID]struct{}) ([]DeleteItem, error) {
	var items []DeleteItem

	if _, ok := visited[root.ID]; ok {
		return nil, nil
	}

	visited[root.ID] = struct{}{}

	includeRoot := flags.Has(mapi.DeleteContainer) || root.Type == mapi.ObjectTypeStore && flags.Has(mapi.DeleteStore)

	if includeRoot {
		item, err := c.buildItem(ctx, tx, root, storeID, true)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	level := []*db.Object{root}

	for len(level) > 0 {
		levelIDs := make([]mapi.ObjectID, 0, len(level))

		for _, object := range level {
			levelIDs = append(levelIDs, object.ID)
		}

		children, err := tx.GetObjectsByParents(ctx, levelIDs)
		if err != nil {
			return nil, err
		}

		var next []*db.Object

		for _, child := range children {
			if _, ok := visited[child.ID]; ok {
				continue
			}

			visited[child.ID] = struct{}{}

			if !child.Type.Valid() {
				c.reportCorrupt(ctx, child, "unknown object type")

				continue
			}

			if err := validateCandidate(child, flags); err != nil {
				return nil, err
			}

			if child.Type == mapi.ObjectTypeMessage && child.Flags.Has(mapi.ObjectFlagAssociated) && flags.Has(mapi.SkipAssociated) {
				continue
			}

			item, err := c.buildItem(ctx, tx, child, storeID, false)
			if err != nil {
				return nil, err
			}

			items = append(items, item)
			next = append(next, child)
		}

		level = next
	}

	return items, nil
}

// validateCandidate checks a non-root candidate's type against the flag
// mask. Hitting a type the mask does not cover aborts the whole expansion.
func validateCandidate(object *db.Object, flags mapi.DeleteFlags) error {
	switch object.Type {
	case mapi.ObjectTypeFolder:
		if !flags.Has(mapi.DeleteFolders) {
			return mapi.ErrHasFolders
		}

	case mapi.ObjectTypeMessage:
		if !flags.Has(mapi.DeleteMessages) {
			return mapi.ErrHasMessages
		}

	case mapi.ObjectTypeRecipient:
		if !flags.Has(mapi.DeleteRecipients) {
			return mapi.ErrHasRecipients
		}

	case mapi.ObjectTypeAttachment:
		if !flags.Has(mapi.DeleteAttachments) {
			return mapi.ErrHasAttachments
		}
	}

	return nil
}

func (c *Cascade) buildItem(ctx context.Context, tx db.Transaction, object *db.Object, storeID mapi.ObjectID, isRoot bool) (DeleteItem, error) {
	item := DeleteItem{
		ID:       object.ID,
		ParentID: object.ParentID,
		Type:     object.Type,
		Flags:    object.Flags,
		IsRoot:   isRoot,
		StoreID:  storeID,
	}

	if object.ParentID != 0 {
		parent, err := tx.GetObject(ctx, object.ParentID)
		if db.IsErrNotFound(err) {
			c.reportCorrupt(ctx, object, "missing parent row")

			return item, nil
		} else if err != nil {
			return item, err
		}

		item.ParentType = parent.Type
	}

	if object.Type == mapi.ObjectTypeMessage {
		flagsProp, err := tx.GetProperty(ctx, object.ID, mapi.PropTagMessageFlags)
		if err != nil && !db.IsErrNotFound(err) {
			return item, err
		}

		item.MessageFlags = mapi.MessageFlags(flagsProp.ValueInt)
		item.InSubmitQueue = item.MessageFlags.Has(mapi.MsgFlagSubmit)

		sizeProp, err := tx.GetProperty(ctx, object.ID, mapi.PropTagMessageSizeExtended)
		if err != nil && !db.IsErrNotFound(err) {
			return item, err
		}

		item.ObjectSize = sizeProp.ValueInt
	}

	// Only messages and folders are trackable; they carry source keys for
	// the change records the removal owes.
	if object.Type == mapi.ObjectTypeMessage || object.Type == mapi.ObjectTypeFolder {
		sourceKey, err := c.index.GetOrCreate(ctx, tx, object.ID)
		if err != nil {
			return item, err
		}

		item.SourceKey = sourceKey

		if item.ParentType == mapi.ObjectTypeFolder {
			parentSourceKey, err := c.index.GetOrCreate(ctx, tx, object.ParentID)
			if err != nil {
				return item, err
			}

			item.ParentSourceKey = parentSourceKey
		}
	}

	return item, nil
}

// reportCorrupt counts a skipped corrupt hierarchy row. Skipping instead of
// failing tolerates historically corrupt data; the skip still has to be
// visible to operators.
func (c *Cascade) reportCorrupt(ctx context.Context, object *db.Object, reason string) {
	logrus.WithFields(logrus.Fields{
		"object": object.ID,
		"reason": reason,
	}).Warn("Skipping corrupt hierarchy row during delete expansion")

	metrics.CorruptHierarchyInc()

	reporter.MessageWithContext(ctx, "Corrupt hierarchy row skipped during delete expansion", reporter.Context{
		"object": object.ID,
		"reason": reason,
	})
}
