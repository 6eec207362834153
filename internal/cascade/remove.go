package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/events"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/metrics"
	"github.com/bradenaw/juniper/xslices"
	"github.com/sirupsen/logrus"
)

// PartialError reports a hard delete that stopped mid-way. Deleted holds the
// committed prefix; those items are durably gone and will not be rolled
// back. Callers must reconcile against exactly this prefix.
type PartialError struct {
	Deleted []DeleteItem
	Err     error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("delete partially completed after %v items: %v", len(e.Deleted), e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// softDelete flags the expanded items deleted inside one transaction.
// Nothing is physically destroyed.
func (c *Cascade) softDelete(ctx context.Context, rootIDs []mapi.ObjectID, flags mapi.DeleteFlags) ([]DeleteItem, error) {
	items, err := db.ClientWriteType(ctx, c.client, func(ctx context.Context, tx db.Transaction) ([]DeleteItem, error) {
		items, err := c.Expand(ctx, tx, rootIDs, flags)
		if err != nil {
			return nil, err
		}

		if len(items) == 0 {
			return nil, nil
		}

		now := time.Now()

		live := xslices.Filter(items, func(item DeleteItem) bool {
			return !item.deleted()
		})

		liveIDs := xslices.Map(live, func(item DeleteItem) mapi.ObjectID {
			return item.ID
		})

		if _, err := tx.AddObjectFlags(ctx, liveIDs, mapi.ObjectFlagDeleted); err != nil {
			return nil, err
		}

		for _, item := range live {
			if item.InSubmitQueue {
				stripped := item.MessageFlags &^ (mapi.MsgFlagSubmit | mapi.MsgFlagUnsent)

				if err := c.props.Write(ctx, tx, item.ParentID, db.NewIntProperty(item.ID, mapi.PropTagMessageFlags, int64(stripped))); err != nil {
					return nil, err
				}
			}

			if err := c.props.Write(ctx, tx, item.ParentID, db.NewTimeProperty(item.ID, mapi.PropTagDeletedOn, now)); err != nil {
				return nil, err
			}
		}

		top := topLevel(items)

		if err := c.counters.ApplyBatch(ctx, tx, counterDeltas(top, false)); err != nil {
			return nil, err
		}

		if err := c.applyStoreSize(ctx, tx, items); err != nil {
			return nil, err
		}

		if err := c.stampCommitTime(ctx, tx, top, now); err != nil {
			return nil, err
		}

		if err := c.recordDeleteChanges(ctx, tx, top, false); err != nil {
			return nil, err
		}

		return items, nil
	})
	if err != nil {
		return nil, err
	}

	c.publishEvents(items, false)

	return items, nil
}

// hardDelete removes the expanded items in batches, children before parents,
// one transaction per batch. Committed batches stay committed even when a
// later batch fails.
func (c *Cascade) hardDelete(ctx context.Context, rootIDs []mapi.ObjectID, flags mapi.DeleteFlags) ([]DeleteItem, error) {
	items, err := db.ClientWriteType(ctx, c.client, func(ctx context.Context, tx db.Transaction) ([]DeleteItem, error) {
		return c.Expand(ctx, tx, rootIDs, flags)
	})
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, nil
	}

	reversed := append([]DeleteItem(nil), items...)
	xslices.Reverse(reversed)

	topSet := make(map[mapi.ObjectID]struct{})

	for _, item := range topLevel(items) {
		topSet[item.ID] = struct{}{}
	}

	var deleted []DeleteItem

	for _, batch := range xslices.Chunk(reversed, c.batchSize) {
		batch := batch

		if err := c.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
			return c.deleteBatch(ctx, tx, batch, topSet)
		}); err != nil {
			metrics.DeleteBatchInc("error")

			logrus.WithError(err).WithField("deleted", len(deleted)).Error("Hard delete stopped at batch boundary")

			c.finishHardDelete(ctx, deleted)

			return deleted, &PartialError{Deleted: deleted, Err: err}
		}

		metrics.DeleteBatchInc("ok")

		c.index.Invalidate(xslices.Map(batch, func(item DeleteItem) mapi.ObjectID {
			return item.ID
		})...)

		deleted = append(deleted, batch...)
	}

	c.finishHardDelete(ctx, deleted)

	return deleted, nil
}

// deleteBatch removes one batch's rows across all tables and applies the
// batch's counter deltas, all in the caller's transaction.
func (c *Cascade) deleteBatch(ctx context.Context, tx db.Transaction, batch []DeleteItem, topSet map[mapi.ObjectID]struct{}) error {
	batchTop := xslices.Filter(batch, func(item DeleteItem) bool {
		_, ok := topSet[item.ID]

		return ok
	})

	if err := c.counters.ApplyBatch(ctx, tx, counterDeltas(batchTop, true)); err != nil {
		return err
	}

	ids := xslices.Map(batch, func(item DeleteItem) mapi.ObjectID {
		return item.ID
	})

	if err := tx.LockObjects(ctx, ids); err != nil {
		return err
	}

	if _, err := tx.DeleteTableProperties(ctx, ids); err != nil {
		return err
	}

	if _, err := tx.DeleteObjectProperties(ctx, ids); err != nil {
		return err
	}

	if _, err := tx.DeleteMultiValueProperties(ctx, ids); err != nil {
		return err
	}

	folderIDs := xslices.Map(xslices.Filter(batch, func(item DeleteItem) bool {
		return item.Type == mapi.ObjectTypeFolder
	}), func(item DeleteItem) mapi.ObjectID {
		return item.ID
	})

	if _, err := tx.DeleteACLs(ctx, folderIDs); err != nil {
		return err
	}

	if _, err := tx.DeleteIndexedProperties(ctx, ids); err != nil {
		return err
	}

	if _, err := tx.DeleteDeferredUpdates(ctx, ids); err != nil {
		return err
	}

	if _, err := tx.DeleteObjects(ctx, ids); err != nil {
		return err
	}

	attachmentIDs := xslices.Map(xslices.Filter(batch, func(item DeleteItem) bool {
		return item.Type == mapi.ObjectTypeAttachment
	}), func(item DeleteItem) mapi.ObjectID {
		return item.ID
	})

	if len(attachmentIDs) != 0 {
		if err := c.blobs.Delete(attachmentIDs...); err != nil {
			return err
		}
	}

	return nil
}

// finishHardDelete settles the obligations owed for the committed prefix:
// store size, commit time stamps, change records, notifications. A failure
// here cannot un-delete anything, so it is logged rather than returned.
func (c *Cascade) finishHardDelete(ctx context.Context, deleted []DeleteItem) {
	if len(deleted) == 0 {
		return
	}

	top := topLevel(deleted)

	if err := c.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		if err := c.applyStoreSize(ctx, tx, deleted); err != nil {
			return err
		}

		if err := c.stampCommitTime(ctx, tx, top, time.Now()); err != nil {
			return err
		}

		return c.recordDeleteChanges(ctx, tx, top, true)
	}); err != nil {
		logrus.WithError(err).Error("Failed to record post-delete state for committed prefix")
	}

	c.publishEvents(deleted, true)
}

// applyStoreSize shrinks the per-store size aggregate by the sizes of every
// message that was still live, including those deleted as subtree descendants
// rather than as top-level items. Lock order position 3.
func (c *Cascade) applyStoreSize(ctx context.Context, tx db.Transaction, items []DeleteItem) error {
	sizes := make(map[mapi.ObjectID]int64)

	for _, item := range items {
		if item.Type != mapi.ObjectTypeMessage || item.deleted() || item.StoreID == 0 {
			continue
		}

		sizes[item.StoreID] += item.ObjectSize
	}

	for storeID, size := range sizes {
		if err := tx.LockStoreSize(ctx, storeID); err != nil {
			return err
		}

		current, err := tx.GetProperty(ctx, storeID, mapi.PropTagMessageSizeExtended)
		if err != nil && !db.IsErrNotFound(err) {
			return err
		}

		value := current.ValueInt - size
		if value < 0 {
			value = 0
		}

		if err := c.props.Write(ctx, tx, 0, db.NewIntProperty(storeID, mapi.PropTagMessageSizeExtended, value)); err != nil {
			return err
		}
	}

	return nil
}

// stampCommitTime bumps the last-local-commit-time of every parent folder
// that lost a child. Lock order position 4, always last.
func (c *Cascade) stampCommitTime(ctx context.Context, tx db.Transaction, top []DeleteItem, now time.Time) error {
	folders := make(map[mapi.ObjectID]struct{})

	for _, item := range top {
		if item.ParentType == mapi.ObjectTypeFolder {
			folders[item.ParentID] = struct{}{}
		}
	}

	for folderID := range folders {
		if err := tx.LockCommitTime(ctx, folderID); err != nil {
			return err
		}

		folder, err := tx.GetObject(ctx, folderID)
		if db.IsErrNotFound(err) {
			// The folder itself went in an earlier batch.
			continue
		} else if err != nil {
			return err
		}

		if err := c.props.Write(ctx, tx, folder.ParentID, db.NewTimeProperty(folderID, mapi.PropTagLocalCommitTimeMax, now)); err != nil {
			return err
		}
	}

	return nil
}

// recordDeleteChanges emits one change record per top-level trackable item.
func (c *Cascade) recordDeleteChanges(ctx context.Context, tx db.Transaction, top []DeleteItem, hard bool) error {
	for _, item := range top {
		kind, ok := deleteChangeKind(item, hard)
		if !ok || item.SourceKey.IsZero() || item.ParentSourceKey.IsZero() {
			continue
		}

		if _, _, err := c.changes.RecordChange(ctx, tx, 0, item.SourceKey, item.ParentSourceKey, kind, 0, false); err != nil {
			return err
		}
	}

	return nil
}

// publishEvents fires the cache-invalidation and table notifications for the
// removed items. Per parent folder the row events coalesce into one
// table-changed signal once they exceed the threshold.
func (c *Cascade) publishEvents(items []DeleteItem, hard bool) {
	if len(items) == 0 {
		return
	}

	c.sink.Publish(events.ObjectsDeleted{
		IDs: xslices.Map(items, func(item DeleteItem) mapi.ObjectID {
			return item.ID
		}),
		Hard: hard,
	})

	byFolder := make(map[mapi.ObjectID][]DeleteItem)

	for _, item := range topLevel(items) {
		if item.ParentType == mapi.ObjectTypeFolder {
			byFolder[item.ParentID] = append(byFolder[item.ParentID], item)
		}
	}

	for folderID, rows := range byFolder {
		if len(rows) > c.coalesceThreshold {
			c.sink.Publish(events.TableChanged{FolderID: folderID})

			continue
		}

		for _, row := range rows {
			c.sink.Publish(events.TableRowDeleted{FolderID: folderID, ObjectID: row.ID})
		}
	}
}
