package db

import (
	"context"

	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

type SyncReadOps interface {
	GetSyncState(ctx context.Context, syncID uint32) (SyncState, error)

	// GetOldestSyncChangeID returns the smallest last-change-id over all
	// cursors, or ErrNotFound when no cursor exists.
	GetOldestSyncChangeID(ctx context.Context) (uint64, error)

	GetSyncedMessages(ctx context.Context, syncID uint32) ([]SyncedMessage, error)
}

type SyncWriteOps interface {
	CreateSyncState(ctx context.Context, rootSourceKey mapi.SourceKey, typ mapi.SyncType) (uint32, error)

	// UpdateSyncState advances the cursor; an attempt to move it backward is
	// ignored.
	UpdateSyncState(ctx context.Context, syncID uint32, lastChangeID uint64) error

	DeleteSyncState(ctx context.Context, syncID uint32) error

	AddSyncedMessage(ctx context.Context, msg SyncedMessage) error

	// RemoveSyncedMessage drops the message from every cursor's snapshot.
	RemoveSyncedMessage(ctx context.Context, sourceKey mapi.SourceKey) (int, error)
}
