// Package cascade expands and executes subtree deletions. A deletion runs in
// two phases: Expand walks the hierarchy under a flag mask and produces a
// flat DeleteItem list, Remove applies either the soft or the hard policy to
// that list while keeping counters, the change log and the index tables
// consistent.
package cascade

import (
	"context"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/events"
	"github.com/Kopano-dev/kopano-core-sub010/internal/counters"
	"github.com/Kopano-dev/kopano-core-sub010/internal/props"
	"github.com/Kopano-dev/kopano-core-sub010/internal/skindex"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/security"
)

// DefaultBatchSize bounds how many items one hard-delete transaction may
// remove, which in turn bounds how long its row locks are held.
const DefaultBatchSize = 32

// DefaultCoalesceThreshold is the per-folder row-event count above which the
// individual table notifications collapse into a single table-changed one.
const DefaultCoalesceThreshold = 10

// ChangeRecorder is the slice of the change log the cascade drives: one
// record per top-level message or non-search folder removed.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, tx db.Transaction, originSyncID uint32, sourceKey, parentSourceKey mapi.SourceKey, kind mapi.ChangeType, flags uint32, forceNewChangeKey bool) (mapi.ChangeKey, mapi.PredecessorList, error)
}

// BlobStore releases attachment payloads during hard delete.
type BlobStore interface {
	Delete(ids ...mapi.ObjectID) error
}

// EventSink receives the post-commit notifications owed after a removal.
type EventSink interface {
	Publish(event events.Event)
}

type Cascade struct {
	client   db.Client
	index    *skindex.Index
	counters *counters.Counters
	props    *props.Store
	security security.Context
	changes  ChangeRecorder
	blobs    BlobStore
	sink     EventSink

	batchSize         int
	coalesceThreshold int
}

func New(
	client db.Client,
	index *skindex.Index,
	folderCounters *counters.Counters,
	propStore *props.Store,
	secCtx security.Context,
	changes ChangeRecorder,
	blobs BlobStore,
	sink EventSink,
) *Cascade {
	return &Cascade{
		client:            client,
		index:             index,
		counters:          folderCounters,
		props:             propStore,
		security:          secCtx,
		changes:           changes,
		blobs:             blobs,
		sink:              sink,
		batchSize:         DefaultBatchSize,
		coalesceThreshold: DefaultCoalesceThreshold,
	}
}

func (c *Cascade) SetBatchSize(size int) {
	if size > 0 {
		c.batchSize = size
	}
}

func (c *Cascade) SetCoalesceThreshold(threshold int) {
	if threshold > 0 {
		c.coalesceThreshold = threshold
	}
}

// Delete removes the subtrees rooted at rootIDs according to flags. The
// returned list holds the items actually deleted: the full expansion on
// success, the committed prefix when a hard delete fails mid-way (the error
// is then a *PartialError).
func (c *Cascade) Delete(ctx context.Context, rootIDs []mapi.ObjectID, flags mapi.DeleteFlags) ([]DeleteItem, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}

	if flags.Has(mapi.HardDelete) {
		return c.hardDelete(ctx, rootIDs, flags)
	}

	return c.softDelete(ctx, rootIDs, flags)
}
