// Package ics is the incremental change synchronization subsystem: it
// records one change row per tracked mutation, maintains per-object change
// keys and predecessor lists, and serves differential change sets to sync
// cursors.
package ics

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/internal/props"
	"github.com/Kopano-dev/kopano-core-sub010/internal/skindex"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/metrics"
	"github.com/Kopano-dev/kopano-core-sub010/security"
)

// Directory scopes address book synchronization; implementations live with
// the user management plugin.
type Directory interface {
	// VisibleObjects lists the source keys of the directory objects the
	// caller may see, used to build an initial address book snapshot.
	VisibleObjects(ctx context.Context) ([]mapi.SourceKey, error)

	// InScope reports whether a directory object falls within the caller's
	// company scope.
	InScope(ctx context.Context, key mapi.SourceKey) (bool, error)
}

type ChangeLog struct {
	client    db.Client
	index     *skindex.Index
	props     *props.Store
	security  security.Context
	directory Directory

	// Subscriber registry; the lock is never held across a database call.
	subLock     sync.Mutex
	subscribers map[uint32]*subscriber
}

func NewChangeLog(client db.Client, index *skindex.Index, propStore *props.Store, secCtx security.Context, directory Directory) *ChangeLog {
	return &ChangeLog{
		client:      client,
		index:       index,
		props:       propStore,
		security:    secCtx,
		directory:   directory,
		subscribers: make(map[uint32]*subscriber),
	}
}

// RecordChange appends one change record for the object identified by
// sourceKey under parentSourceKey. Delete kinds purge the object from all
// synced message snapshots and carry no change key. A fresh change key is
// generated only for server-originated changes (originSyncID zero) or when
// the caller forces one; replica-supplied histories are trusted as-is.
func (l *ChangeLog) RecordChange(ctx context.Context, tx db.Transaction, originSyncID uint32, sourceKey, parentSourceKey mapi.SourceKey, kind mapi.ChangeType, flags uint32, forceNewChangeKey bool) (mapi.ChangeKey, mapi.PredecessorList, error) {
	if sourceKey.IsZero() || parentSourceKey.IsZero() {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, fmt.Errorf("%w: empty source key", mapi.ErrInvalidParameter)
	}

	if sourceKey.Equal(parentSourceKey) {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, fmt.Errorf("%w: source key equals parent source key", mapi.ErrInvalidParameter)
	}

	if !kind.Valid() || kind.IsAB() {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, fmt.Errorf("%w: change kind %v", mapi.ErrInvalidType, kind)
	}

	changeID, err := tx.UpsertChange(ctx, originSyncID, sourceKey, parentSourceKey, kind, flags)
	if err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	if kind.IsMessage() {
		metrics.ChangeRecordedInc("message")
	} else {
		metrics.ChangeRecordedInc("folder")
	}

	if kind.IsDelete() {
		// Deleted objects have no predecessor list and must vanish from the
		// synced snapshots so no cursor re-sends them.
		if _, err := tx.RemoveSyncedMessage(ctx, sourceKey); err != nil {
			return mapi.ChangeKey{}, mapi.PredecessorList{}, err
		}

		return mapi.ChangeKey{}, mapi.PredecessorList{}, nil
	}

	if kind == mapi.ChangeMessageNew && originSyncID != 0 {
		// The originating cursor already has the message; remembering it at
		// this watermark stops get-changes from echoing it back.
		if err := tx.AddSyncedMessage(ctx, db.SyncedMessage{
			SyncID:          originSyncID,
			ChangeID:        changeID,
			SourceKey:       sourceKey,
			ParentSourceKey: parentSourceKey,
		}); err != nil {
			return mapi.ChangeKey{}, mapi.PredecessorList{}, err
		}
	}

	if originSyncID == 0 || forceNewChangeKey {
		return l.regenerateChangeKey(ctx, tx, sourceKey, changeID)
	}

	return l.storedChangeKey(ctx, tx, sourceKey)
}

// regenerateChangeKey mints the change key for changeID and appends it to
// the object's predecessor list.
func (l *ChangeLog) regenerateChangeKey(ctx context.Context, tx db.Transaction, sourceKey mapi.SourceKey, changeID uint64) (mapi.ChangeKey, mapi.PredecessorList, error) {
	key := mapi.ChangeKey{Replica: l.index.Replica(), ChangeID: uint32(changeID)}

	objectID, err := l.index.Resolve(ctx, tx, sourceKey)
	if db.IsErrNotFound(err) {
		// Nothing persisted yet for this key; the caller still gets a valid
		// change key for the record it just wrote.
		return key, mapi.PredecessorList{}, nil
	} else if err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	list, err := l.loadPredecessorList(ctx, tx, objectID)
	if err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	list.Add(key)

	object, err := tx.GetObject(ctx, objectID)
	if err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	if err := l.props.Write(ctx, tx, object.ParentID, db.NewBinaryProperty(objectID, mapi.PropTagChangeKey, key.Bytes())); err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	if err := l.props.Write(ctx, tx, object.ParentID, db.NewBinaryProperty(objectID, mapi.PropTagPredecessorChangeList, list.Bytes())); err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	return key, list, nil
}

// storedChangeKey returns the object's current change key and predecessor
// list without modifying either.
func (l *ChangeLog) storedChangeKey(ctx context.Context, tx db.Transaction, sourceKey mapi.SourceKey) (mapi.ChangeKey, mapi.PredecessorList, error) {
	objectID, err := l.index.Resolve(ctx, tx, sourceKey)
	if db.IsErrNotFound(err) {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, nil
	} else if err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	list, err := l.loadPredecessorList(ctx, tx, objectID)
	if err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	keyProp, err := tx.GetProperty(ctx, objectID, mapi.PropTagChangeKey)
	if db.IsErrNotFound(err) {
		return mapi.ChangeKey{}, list, nil
	} else if err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	key, err := mapi.ParseChangeKey(keyProp.ValueBin)
	if err != nil {
		return mapi.ChangeKey{}, mapi.PredecessorList{}, err
	}

	return key, list, nil
}

func (l *ChangeLog) loadPredecessorList(ctx context.Context, tx db.Transaction, objectID mapi.ObjectID) (mapi.PredecessorList, error) {
	prop, err := tx.GetProperty(ctx, objectID, mapi.PropTagPredecessorChangeList)
	if db.IsErrNotFound(err) {
		return mapi.PredecessorList{}, nil
	} else if err != nil {
		return mapi.PredecessorList{}, err
	}

	return mapi.ParsePredecessorList(prop.ValueBin)
}

// RecordDirectoryChange appends one address book change record. Directory
// objects are outside the hierarchy, so none of the content locking rules
// apply here.
func (l *ChangeLog) RecordDirectoryChange(ctx context.Context, tx db.Transaction, kind mapi.ChangeType, sourceKey, parentSourceKey mapi.SourceKey) error {
	if sourceKey.IsZero() {
		return fmt.Errorf("%w: empty source key", mapi.ErrInvalidParameter)
	}

	if !kind.Valid() || !kind.IsAB() {
		return fmt.Errorf("%w: directory change kind %v", mapi.ErrInvalidType, kind)
	}

	if _, err := tx.UpsertABChange(ctx, sourceKey, parentSourceKey, kind); err != nil {
		return err
	}

	metrics.ChangeRecordedInc("ab")

	return nil
}
