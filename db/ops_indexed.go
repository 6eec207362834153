package db

import (
	"context"

	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

// Indexed properties back the source key index: binary property values with
// a uniqueness constraint per tag, resolvable back to their object.
type IndexedReadOps interface {
	GetObjectIDByIndexedProperty(ctx context.Context, tag mapi.PropTag, value []byte) (mapi.ObjectID, error)

	GetIndexedProperty(ctx context.Context, objectID mapi.ObjectID, tag mapi.PropTag) ([]byte, error)
}

type IndexedWriteOps interface {
	UpsertIndexedProperty(ctx context.Context, objectID mapi.ObjectID, tag mapi.PropTag, value []byte) error

	DeleteIndexedProperties(ctx context.Context, ids []mapi.ObjectID) (int, error)

	DeleteIndexedValue(ctx context.Context, tag mapi.PropTag, value []byte) error

	// NextSequence returns the next value of a named monotonic counter,
	// starting at 1.
	NextSequence(ctx context.Context, name string) (uint64, error)
}
