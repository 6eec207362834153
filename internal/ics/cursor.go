package ics

import (
	"context"
	"fmt"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

// SetSyncStatus registers a new sync cursor rooted at the given source key
// and returns its id.
func (l *ChangeLog) SetSyncStatus(ctx context.Context, rootSourceKey mapi.SourceKey, syncType mapi.SyncType) (uint32, error) {
	if !syncType.Valid() {
		return 0, fmt.Errorf("%w: sync type %v", mapi.ErrInvalidType, syncType)
	}

	if syncType != mapi.SyncAddressBook && rootSourceKey.IsZero() {
		return 0, fmt.Errorf("%w: empty root source key", mapi.ErrInvalidParameter)
	}

	return db.ClientWriteType(ctx, l.client, func(ctx context.Context, tx db.Transaction) (uint32, error) {
		return tx.CreateSyncState(ctx, rootSourceKey, syncType)
	})
}

// UpdateSyncStatus advances the cursor to lastChangeID. Moving backward is
// ignored, never an error.
func (l *ChangeLog) UpdateSyncStatus(ctx context.Context, syncID uint32, lastChangeID uint64) error {
	return l.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		return tx.UpdateSyncState(ctx, syncID, lastChangeID)
	})
}

// RemoveSyncStatus drops the cursor and its synced message snapshot.
func (l *ChangeLog) RemoveSyncStatus(ctx context.Context, syncID uint32) error {
	l.Unsubscribe(syncID)

	return l.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		return tx.DeleteSyncState(ctx, syncID)
	})
}
