// Package counters maintains the denormalized per-folder counters. Each
// counter lives as an ordinary property on the folder and is mirrored into
// the parent's table row so folder listings read it without a join.
package counters

import (
	"context"
	"fmt"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/internal/props"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/metrics"
	"github.com/Kopano-dev/kopano-core-sub010/reporter"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

type Counters struct {
	props *props.Store
}

func New(propStore *props.Store) *Counters {
	return &Counters{props: propStore}
}

// Adjust adds delta to one counter of the folder. Decrements clamp at zero
// so a spurious decrement can never push a stored counter negative.
func (c *Counters) Adjust(ctx context.Context, tx db.Transaction, folderID mapi.ObjectID, kind mapi.CounterKind, delta int32) error {
	if delta == 0 {
		return nil
	}

	var deltas mapi.CounterDeltas

	deltas.Add(kind, delta)

	return c.ApplyBatch(ctx, tx, map[mapi.ObjectID]mapi.CounterDeltas{folderID: deltas})
}

// ApplyBatch applies counter deltas for many folders inside one transaction.
// The counter rows are locked first, before any hierarchy row the caller may
// lock afterwards.
func (c *Counters) ApplyBatch(ctx context.Context, tx db.Transaction, batch map[mapi.ObjectID]mapi.CounterDeltas) error {
	folderIDs := maps.Keys(batch)
	if len(folderIDs) == 0 {
		return nil
	}

	if err := tx.LockFolderCounters(ctx, folderIDs); err != nil {
		return err
	}

	for _, folderID := range folderIDs {
		deltas := batch[folderID]
		if deltas.IsZero() {
			continue
		}

		folder, err := tx.GetObject(ctx, folderID)
		if err != nil {
			return fmt.Errorf("failed to load folder %v for counter update: %w", folderID, err)
		}

		for kind := mapi.CounterKind(0); kind < mapi.NumCounterKinds; kind++ {
			delta := deltas[kind]
			if delta == 0 {
				continue
			}

			if err := c.write(ctx, tx, folder, kind, delta); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Counters) write(ctx context.Context, tx db.Transaction, folder *db.Object, kind mapi.CounterKind, delta int32) error {
	current, err := tx.GetProperty(ctx, folder.ID, kind.Tag())
	if err != nil && !db.IsErrNotFound(err) {
		return err
	}

	value := current.ValueInt + int64(delta)
	if value < 0 {
		value = 0
	}

	return c.props.Write(ctx, tx, folder.ParentID, db.NewIntProperty(folder.ID, kind.Tag(), value))
}

// Reset recomputes all seven counters of the folder from its child rows and
// returns how many were found drifted. Any drift is a latent bug elsewhere:
// it is counted, logged and reported, never swallowed.
func (c *Counters) Reset(ctx context.Context, client db.Client, folderID mapi.ObjectID) (int, error) {
	return db.ClientWriteType(ctx, client, func(ctx context.Context, tx db.Transaction) (int, error) {
		return c.ResetTx(ctx, tx, folderID)
	})
}

// ResetTx is Reset inside a caller-owned transaction.
func (c *Counters) ResetTx(ctx context.Context, tx db.Transaction, folderID mapi.ObjectID) (int, error) {
	if err := tx.LockFolderCounters(ctx, []mapi.ObjectID{folderID}); err != nil {
		return 0, err
	}

	folder, err := tx.GetObject(ctx, folderID)
	if err != nil {
		return 0, err
	}

	if folder.Type != mapi.ObjectTypeFolder {
		return 0, fmt.Errorf("%w: cannot reset counters on a %v", mapi.ErrInvalidType, folder.Type)
	}

	counted, err := countChildren(ctx, tx, folderID)
	if err != nil {
		return 0, err
	}

	var fixed int

	for kind := mapi.CounterKind(0); kind < mapi.NumCounterKinds; kind++ {
		stored, err := tx.GetProperty(ctx, folderID, kind.Tag())
		if err != nil && !db.IsErrNotFound(err) {
			return fixed, err
		}

		if stored.ValueInt == counted[kind] {
			continue
		}

		logrus.WithFields(logrus.Fields{
			"folder":  folderID,
			"counter": kind,
			"stored":  stored.ValueInt,
			"counted": counted[kind],
		}).Warn("Folder counter drifted")

		metrics.CounterDriftAdd(kind.String(), 1)

		reporter.MessageWithContext(ctx, "Folder counter drifted", reporter.Context{
			"folder":  folderID,
			"counter": kind.String(),
			"stored":  stored.ValueInt,
			"counted": counted[kind],
		})

		if err := c.props.Write(ctx, tx, folder.ParentID, db.NewIntProperty(folderID, kind.Tag(), counted[kind])); err != nil {
			return fixed, err
		}

		fixed++
	}

	return fixed, nil
}

// countChildren recomputes the reference values straight from the child rows.
func countChildren(ctx context.Context, tx db.Transaction, folderID mapi.ObjectID) ([mapi.NumCounterKinds]int64, error) {
	var counted [mapi.NumCounterKinds]int64

	children, err := tx.GetObjectsByParent(ctx, folderID)
	if err != nil {
		return counted, err
	}

	var messageIDs []mapi.ObjectID

	for _, child := range children {
		if child.Type == mapi.ObjectTypeMessage {
			messageIDs = append(messageIDs, child.ID)
		}
	}

	flagProps, err := tx.GetPropertyForObjects(ctx, messageIDs, mapi.PropTagMessageFlags)
	if err != nil {
		return counted, err
	}

	for _, child := range children {
		deleted := child.Flags.Has(mapi.ObjectFlagDeleted)
		assoc := child.Flags.Has(mapi.ObjectFlagAssociated)

		switch child.Type {
		case mapi.ObjectTypeFolder:
			if deleted {
				counted[mapi.CounterDeletedFolders]++
			} else {
				counted[mapi.CounterSubfolders]++
			}

		case mapi.ObjectTypeMessage:
			msgFlags := mapi.MessageFlags(flagProps[child.ID].ValueInt)

			switch {
			case deleted && assoc:
				counted[mapi.CounterDeletedAssocMessages]++
			case deleted:
				counted[mapi.CounterDeletedMessages]++
			case assoc:
				counted[mapi.CounterAssocContents]++
			default:
				counted[mapi.CounterContents]++

				if !msgFlags.Has(mapi.MsgFlagRead) {
					counted[mapi.CounterUnread]++
				}
			}
		}
	}

	return counted, nil
}
