package db

import (
	"context"

	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

type ObjectReadOps interface {
	GetObject(ctx context.Context, id mapi.ObjectID) (*Object, error)

	ObjectExists(ctx context.Context, id mapi.ObjectID) (bool, error)

	GetObjectsByParent(ctx context.Context, parentID mapi.ObjectID) ([]*Object, error)

	GetObjectsByParents(ctx context.Context, parentIDs []mapi.ObjectID) ([]*Object, error)

	GetObjectCount(ctx context.Context) (int, error)
}

type ObjectWriteOps interface {
	CreateObject(ctx context.Context, parentID mapi.ObjectID, typ mapi.ObjectType, ownerID uint32, flags mapi.ObjectFlags) (mapi.ObjectID, error)

	SetObjectParent(ctx context.Context, id, parentID mapi.ObjectID) error

	AddObjectFlags(ctx context.Context, ids []mapi.ObjectID, flags mapi.ObjectFlags) (int, error)

	ClearObjectFlags(ctx context.Context, ids []mapi.ObjectID, flags mapi.ObjectFlags) (int, error)

	DeleteObjects(ctx context.Context, ids []mapi.ObjectID) (int, error)

	// LockObjects takes exclusive row locks on the given hierarchy rows.
	// Position 2 in the fixed lock order.
	LockObjects(ctx context.Context, ids []mapi.ObjectID) error
}
