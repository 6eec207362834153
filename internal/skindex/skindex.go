// Package skindex maintains the bidirectional mapping between source keys
// and hierarchy object ids. Server-minted keys come from a per-replica
// monotonic sequence; foreign keys are stored as supplied.
package skindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/google/uuid"
)

const counterSequence = "sourcekey_counter"

type Index struct {
	replica uuid.UUID

	// The cache must never be held across a database call.
	cacheLock   sync.Mutex
	byObject    map[mapi.ObjectID]mapi.SourceKey
	bySourceKey map[string]mapi.ObjectID
}

func NewIndex(replica uuid.UUID) *Index {
	return &Index{
		replica:     replica,
		byObject:    make(map[mapi.ObjectID]mapi.SourceKey),
		bySourceKey: make(map[string]mapi.ObjectID),
	}
}

func (i *Index) Replica() uuid.UUID {
	return i.replica
}

// GetOrCreate returns the object's source key, minting and persisting one on
// first call. Minting is idempotent: a second call returns the stored key.
func (i *Index) GetOrCreate(ctx context.Context, tx db.Transaction, objectID mapi.ObjectID) (mapi.SourceKey, error) {
	if key, ok := i.cached(objectID); ok {
		return key, nil
	}

	value, err := tx.GetIndexedProperty(ctx, objectID, mapi.PropTagSourceKey)
	if err == nil {
		key := mapi.SourceKey(value)
		i.remember(objectID, key)

		return key, nil
	} else if !db.IsErrNotFound(err) {
		return nil, err
	}

	counter, err := tx.NextSequence(ctx, counterSequence)
	if err != nil {
		return nil, err
	}

	key := mapi.NewSourceKey(i.replica, counter)

	if err := i.set(ctx, tx, objectID, key); err != nil {
		return nil, err
	}

	return key, nil
}

// SetSourceKey records a caller-supplied key for the object, e.g. one
// received from another replica during import.
func (i *Index) SetSourceKey(ctx context.Context, tx db.Transaction, objectID mapi.ObjectID, key mapi.SourceKey) error {
	if key.IsZero() {
		return fmt.Errorf("%w: empty source key", mapi.ErrInvalidParameter)
	}

	return i.set(ctx, tx, objectID, key)
}

func (i *Index) set(ctx context.Context, tx db.Transaction, objectID mapi.ObjectID, key mapi.SourceKey) error {
	existing, err := tx.GetObjectIDByIndexedProperty(ctx, mapi.PropTagSourceKey, key)
	if err == nil && existing != objectID {
		reclaimable, err := i.belongsToDeletedStore(ctx, tx, existing)
		if err != nil {
			return err
		}

		if !reclaimable {
			return fmt.Errorf("%w: source key %v already maps to %v", mapi.ErrCollision, key, existing)
		}

		if err := tx.DeleteIndexedValue(ctx, mapi.PropTagSourceKey, key); err != nil {
			return err
		}

		i.Invalidate(existing)
	} else if err != nil && !db.IsErrNotFound(err) {
		return err
	}

	if err := tx.UpsertIndexedProperty(ctx, objectID, mapi.PropTagSourceKey, key); err != nil {
		return err
	}

	if err := tx.UpsertProperty(ctx, db.NewBinaryProperty(objectID, mapi.PropTagSourceKey, key)); err != nil {
		return err
	}

	i.remember(objectID, key)

	return nil
}

// belongsToDeletedStore walks up from the object to its store and reports
// whether that store is flagged deleted. A mapping under a deleted store may
// be reclaimed.
func (i *Index) belongsToDeletedStore(ctx context.Context, rd db.ReadOnly, objectID mapi.ObjectID) (bool, error) {
	id := objectID

	for {
		object, err := rd.GetObject(ctx, id)
		if db.IsErrNotFound(err) {
			// The mapped row is already gone; safe to reclaim.
			return true, nil
		} else if err != nil {
			return false, err
		}

		if object.Type == mapi.ObjectTypeStore {
			return object.Flags.Has(mapi.ObjectFlagDeleted), nil
		}

		if object.ParentID == 0 {
			return false, nil
		}

		id = object.ParentID
	}
}

// Resolve maps a source key back to its object id.
func (i *Index) Resolve(ctx context.Context, rd db.ReadOnly, key mapi.SourceKey) (mapi.ObjectID, error) {
	if key.IsZero() {
		return 0, fmt.Errorf("%w: empty source key", mapi.ErrInvalidParameter)
	}

	i.cacheLock.Lock()
	if id, ok := i.bySourceKey[string(key)]; ok {
		i.cacheLock.Unlock()

		return id, nil
	}
	i.cacheLock.Unlock()

	id, err := rd.GetObjectIDByIndexedProperty(ctx, mapi.PropTagSourceKey, key)
	if err != nil {
		return 0, err
	}

	i.remember(id, key)

	return id, nil
}

// Invalidate drops the given objects from the lookup cache. Called on hard
// delete after each batch commits, ahead of the settlement transaction.
func (i *Index) Invalidate(ids ...mapi.ObjectID) {
	i.cacheLock.Lock()
	defer i.cacheLock.Unlock()

	for _, id := range ids {
		if key, ok := i.byObject[id]; ok {
			delete(i.bySourceKey, string(key))
			delete(i.byObject, id)
		}
	}
}

func (i *Index) cached(objectID mapi.ObjectID) (mapi.SourceKey, bool) {
	i.cacheLock.Lock()
	defer i.cacheLock.Unlock()

	key, ok := i.byObject[objectID]

	return key, ok
}

func (i *Index) remember(objectID mapi.ObjectID, key mapi.SourceKey) {
	i.cacheLock.Lock()
	defer i.cacheLock.Unlock()

	i.byObject[objectID] = key
	i.bySourceKey[string(key)] = objectID
}
