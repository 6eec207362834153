package db

import (
	"context"
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

type ChangeReadOps interface {
	GetMaxChangeID(ctx context.Context) (uint64, error)

	// GetChangesSince returns all change rows with id > sinceID whose type
	// intersects mask, ordered by id ascending. A non-nil parentKeys slice
	// limits the result to changes under those parents.
	GetChangesSince(ctx context.Context, sinceID uint64, mask mapi.ChangeType, parentKeys []mapi.SourceKey) ([]Change, error)

	GetChangeCount(ctx context.Context) (int, error)

	GetMaxABChangeID(ctx context.Context) (uint64, error)

	GetABChangesSince(ctx context.Context, sinceID uint64) ([]Change, error)
}

type ChangeWriteOps interface {
	// UpsertChange inserts a change row, replacing any existing row with the
	// same (parent source key, source key, type) triple. The returned id is
	// freshly allocated either way and larger than all earlier ids.
	UpsertChange(ctx context.Context, originSyncID uint32, sourceKey, parentSourceKey mapi.SourceKey, typ mapi.ChangeType, flags uint32) (uint64, error)

	UpsertABChange(ctx context.Context, sourceKey, parentSourceKey mapi.SourceKey, typ mapi.ChangeType) (uint64, error)

	// DeleteChangesBefore removes change rows with id at most maxID that
	// were recorded at or before cutoff.
	DeleteChangesBefore(ctx context.Context, maxID uint64, cutoff time.Time) (int, error)
}
