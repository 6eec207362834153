package db

import (
	"context"

	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

type PropertyReadOps interface {
	GetProperty(ctx context.Context, objectID mapi.ObjectID, tag mapi.PropTag) (Property, error)

	GetProperties(ctx context.Context, objectID mapi.ObjectID, tags []mapi.PropTag) ([]Property, error)

	GetPropertyForObjects(ctx context.Context, ids []mapi.ObjectID, tag mapi.PropTag) (map[mapi.ObjectID]Property, error)

	GetTableProperty(ctx context.Context, folderID, objectID mapi.ObjectID, tag mapi.PropTag) (Property, error)
}

type PropertyWriteOps interface {
	UpsertProperty(ctx context.Context, prop Property) error

	UpsertTableProperty(ctx context.Context, folderID mapi.ObjectID, prop Property) error

	DeleteProperty(ctx context.Context, objectID mapi.ObjectID, tag mapi.PropTag) error

	DeleteObjectProperties(ctx context.Context, ids []mapi.ObjectID) (int, error)

	// DeleteTableProperties removes the table-view mirror rows both for the
	// given objects as listed children and as owning folders.
	DeleteTableProperties(ctx context.Context, ids []mapi.ObjectID) (int, error)

	DeleteMultiValueProperties(ctx context.Context, ids []mapi.ObjectID) (int, error)

	DeleteACLs(ctx context.Context, folderIDs []mapi.ObjectID) (int, error)

	DeleteDeferredUpdates(ctx context.Context, ids []mapi.ObjectID) (int, error)

	// LockFolderCounters takes exclusive locks on the counter property rows
	// of the given folders. Position 1 in the fixed lock order.
	LockFolderCounters(ctx context.Context, folderIDs []mapi.ObjectID) error

	// LockStoreSize locks the store size aggregate row. Position 3 in the
	// fixed lock order.
	LockStoreSize(ctx context.Context, storeID mapi.ObjectID) error

	// LockCommitTime locks the folder's last-local-commit-time row. Position
	// 4 in the fixed lock order.
	LockCommitTime(ctx context.Context, folderID mapi.ObjectID) error
}
