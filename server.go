package kopano

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/async"
	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/events"
	"github.com/Kopano-dev/kopano-core-sub010/internal/cascade"
	"github.com/Kopano-dev/kopano-core-sub010/internal/counters"
	"github.com/Kopano-dev/kopano-core-sub010/internal/ics"
	"github.com/Kopano-dev/kopano-core-sub010/internal/props"
	"github.com/Kopano-dev/kopano-core-sub010/internal/skindex"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/reporter"
	"github.com/Kopano-dev/kopano-core-sub010/security"
	"github.com/Kopano-dev/kopano-core-sub010/store"
	"github.com/Kopano-dev/kopano-core-sub010/watcher"
	"github.com/sirupsen/logrus"
)

// Re-exported collaborator surfaces so embedders never import internal
// packages.
type (
	Directory         = ics.Directory
	Restriction       = ics.Restriction
	GetChangesRequest = ics.GetChangesRequest
	DeleteItem        = cascade.DeleteItem
	PartialError      = cascade.PartialError
)

// Server owns one database and keeps its derived state consistent through
// every mutation that enters here.
type Server struct {
	dir string

	client    db.Client
	index     *skindex.Index
	props     *props.Store
	counters  *counters.Counters
	changeLog *ics.ChangeLog
	cascade   *cascade.Cascade
	blobs     store.Store
	security  security.Context

	reporter     reporter.Reporter
	panicHandler async.PanicHandler

	sweeper        *ics.Sweeper
	sweeperStarted bool
	sweeperLock    sync.Mutex

	watchersLock sync.RWMutex
	watchers     map[*watcher.Watcher[events.Event]]struct{}
}

// withReporter makes the configured reporter reachable from every database
// call made under this context.
func (s *Server) withReporter(ctx context.Context) context.Context {
	return reporter.NewContextWithReporter(ctx, s.reporter)
}

// Dir returns the directory the server stores its data in.
func (s *Server) Dir() string {
	return s.dir
}

// CreateObject inserts one object under the given parent and returns its id
// and source key. Stores take parentID zero; everything else must name a
// parent of the right type. originSyncID identifies the sync cursor the
// creation came in through, zero for server-originated creations.
func (s *Server) CreateObject(ctx context.Context, parentID mapi.ObjectID, typ mapi.ObjectType, flags mapi.ObjectFlags, ownerID uint32, originSyncID uint32) (mapi.ObjectID, mapi.SourceKey, error) {
	ctx = s.withReporter(ctx)

	if !typ.Valid() {
		return 0, nil, fmt.Errorf("%w: object type %v", mapi.ErrInvalidType, typ)
	}

	if (typ == mapi.ObjectTypeStore) != (parentID == 0) {
		return 0, nil, fmt.Errorf("%w: only stores live at the hierarchy root", mapi.ErrInvalidParameter)
	}

	if parentID != 0 {
		if err := s.security.CheckPermission(ctx, parentID, security.RightCreate); err != nil {
			return 0, nil, err
		}
	}

	type created struct {
		id        mapi.ObjectID
		sourceKey mapi.SourceKey
		changeID  uint64
	}

	result, err := db.ClientWriteType(ctx, s.client, func(ctx context.Context, tx db.Transaction) (created, error) {
		var parent *db.Object

		if parentID != 0 {
			var err error

			parent, err = tx.GetObject(ctx, parentID)
			if err != nil {
				return created{}, err
			}

			if err := validateParent(typ, parent.Type); err != nil {
				return created{}, err
			}
		}

		if parent != nil && parent.Type == mapi.ObjectTypeFolder {
			if err := s.counters.ApplyBatch(ctx, tx, map[mapi.ObjectID]mapi.CounterDeltas{
				parentID: additionDeltas(typ, flags, 0),
			}); err != nil {
				return created{}, err
			}
		}

		id, err := tx.CreateObject(ctx, parentID, typ, ownerID, flags)
		if err != nil {
			return created{}, err
		}

		if typ == mapi.ObjectTypeMessage {
			// A fresh message starts unread.
			if err := s.props.Write(ctx, tx, parentID, db.NewIntProperty(id, mapi.PropTagMessageFlags, 0)); err != nil {
				return created{}, err
			}
		}

		if typ == mapi.ObjectTypeStore {
			if err := s.props.Write(ctx, tx, 0, db.NewIntProperty(id, mapi.PropTagMessageSizeExtended, 0)); err != nil {
				return created{}, err
			}
		}

		out := created{id: id}

		if typ == mapi.ObjectTypeStore || typ == mapi.ObjectTypeFolder || typ == mapi.ObjectTypeMessage {
			sourceKey, err := s.index.GetOrCreate(ctx, tx, id)
			if err != nil {
				return created{}, err
			}

			out.sourceKey = sourceKey

			if parent != nil && parent.Type == mapi.ObjectTypeFolder {
				parentSourceKey, err := s.index.GetOrCreate(ctx, tx, parentID)
				if err != nil {
					return created{}, err
				}

				kind := mapi.ChangeMessageNew
				if typ == mapi.ObjectTypeFolder {
					kind = mapi.ChangeFolderNew
				}

				if _, _, err := s.changeLog.RecordChange(ctx, tx, originSyncID, sourceKey, parentSourceKey, kind, 0, false); err != nil {
					return created{}, err
				}

				if out.changeID, err = tx.GetMaxChangeID(ctx); err != nil {
					return created{}, err
				}
			}
		}

		if parent != nil && parent.Type == mapi.ObjectTypeFolder {
			if err := s.stampCommitTime(ctx, tx, parentID, time.Now()); err != nil {
				return created{}, err
			}
		}

		return out, nil
	})
	if err != nil {
		return 0, nil, err
	}

	if result.changeID != 0 {
		s.notifyChanges(originSyncID, result.changeID)
	}

	return result.id, result.sourceKey, nil
}

// SetProperties writes a batch of properties on one object, maintains the
// unread counter when the read flag flips, and records the matching change.
func (s *Server) SetProperties(ctx context.Context, objectID mapi.ObjectID, properties []db.Property, originSyncID uint32) error {
	ctx = s.withReporter(ctx)

	if len(properties) == 0 {
		return nil
	}

	if err := s.security.CheckPermission(ctx, objectID, security.RightEditAny); err != nil {
		return err
	}

	var changeID uint64

	if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		object, err := tx.GetObject(ctx, objectID)
		if err != nil {
			return err
		}

		readStateOnly, err := s.applyUnreadDelta(ctx, tx, object, properties)
		if err != nil {
			return err
		}

		if err := s.props.WriteMany(ctx, tx, object.ParentID, properties); err != nil {
			return err
		}

		kind, tracked := modifyChangeKind(object, readStateOnly)
		if tracked {
			sourceKey, err := s.index.GetOrCreate(ctx, tx, objectID)
			if err != nil {
				return err
			}

			parentSourceKey, err := s.index.GetOrCreate(ctx, tx, object.ParentID)
			if err != nil {
				return err
			}

			if _, _, err := s.changeLog.RecordChange(ctx, tx, originSyncID, sourceKey, parentSourceKey, kind, 0, false); err != nil {
				return err
			}

			if changeID, err = tx.GetMaxChangeID(ctx); err != nil {
				return err
			}
		}

		if object.ParentID != 0 {
			if err := s.stampCommitTime(ctx, tx, object.ParentID, time.Now()); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		return err
	}

	if changeID != 0 {
		s.notifyChanges(originSyncID, changeID)
	}

	return nil
}

// applyUnreadDelta adjusts the parent's unread counter when the incoming
// property batch flips the message's read flag, and reports whether the
// batch touches nothing but the message flags.
func (s *Server) applyUnreadDelta(ctx context.Context, tx db.Transaction, object *db.Object, properties []db.Property) (bool, error) {
	if object.Type != mapi.ObjectTypeMessage || object.Flags.Has(mapi.ObjectFlagDeleted) || object.Flags.Has(mapi.ObjectFlagAssociated) {
		return false, nil
	}

	flagsOnly := true

	var newFlags *mapi.MessageFlags

	for _, prop := range properties {
		if prop.Tag == mapi.PropTagMessageFlags {
			flags := mapi.MessageFlags(prop.ValueInt)
			newFlags = &flags
		} else {
			flagsOnly = false
		}
	}

	if newFlags == nil {
		return false, nil
	}

	current, err := tx.GetProperty(ctx, object.ID, mapi.PropTagMessageFlags)
	if err != nil && !db.IsErrNotFound(err) {
		return false, err
	}

	wasRead := mapi.MessageFlags(current.ValueInt).Has(mapi.MsgFlagRead)
	isRead := newFlags.Has(mapi.MsgFlagRead)

	if wasRead == isRead {
		return flagsOnly, nil
	}

	delta := int32(1)
	if isRead {
		delta = -1
	}

	if err := s.counters.Adjust(ctx, tx, object.ParentID, mapi.CounterUnread, delta); err != nil {
		return false, err
	}

	return flagsOnly, nil
}

// MoveObject reparents an object. Its id and source key never change; only
// parent id, the table mirrors, both folders' counters and the parent source
// key of subsequent change records do.
func (s *Server) MoveObject(ctx context.Context, objectID, newParentID mapi.ObjectID, originSyncID uint32) error {
	ctx = s.withReporter(ctx)

	if err := s.security.CheckPermission(ctx, objectID, security.RightEditAny); err != nil {
		return err
	}

	if err := s.security.CheckPermission(ctx, newParentID, security.RightCreate); err != nil {
		return err
	}

	var changeID uint64

	if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		object, err := tx.GetObject(ctx, objectID)
		if err != nil {
			return err
		}

		newParent, err := tx.GetObject(ctx, newParentID)
		if err != nil {
			return err
		}

		if err := validateParent(object.Type, newParent.Type); err != nil {
			return err
		}

		if object.ParentID == newParentID {
			return nil
		}

		oldParent, err := tx.GetObject(ctx, object.ParentID)
		if err != nil {
			return err
		}

		msgFlags, err := tx.GetProperty(ctx, objectID, mapi.PropTagMessageFlags)
		if err != nil && !db.IsErrNotFound(err) {
			return err
		}

		deltas := make(map[mapi.ObjectID]mapi.CounterDeltas)

		if oldParent.Type == mapi.ObjectTypeFolder {
			deltas[oldParent.ID] = removalDeltas(object.Type, object.Flags, mapi.MessageFlags(msgFlags.ValueInt))
		}

		if newParent.Type == mapi.ObjectTypeFolder {
			deltas[newParentID] = additionDeltas(object.Type, object.Flags, mapi.MessageFlags(msgFlags.ValueInt))
		}

		if err := s.counters.ApplyBatch(ctx, tx, deltas); err != nil {
			return err
		}

		if err := tx.LockObjects(ctx, []mapi.ObjectID{objectID}); err != nil {
			return err
		}

		if err := tx.SetObjectParent(ctx, objectID, newParentID); err != nil {
			return err
		}

		if err := s.moveTableMirror(ctx, tx, objectID, newParentID); err != nil {
			return err
		}

		if object.Type == mapi.ObjectTypeMessage || object.Type == mapi.ObjectTypeFolder {
			sourceKey, err := s.index.GetOrCreate(ctx, tx, objectID)
			if err != nil {
				return err
			}

			if newParent.Type == mapi.ObjectTypeFolder {
				parentSourceKey, err := s.index.GetOrCreate(ctx, tx, newParentID)
				if err != nil {
					return err
				}

				kind := mapi.ChangeMessageChange
				if object.Type == mapi.ObjectTypeFolder {
					kind = mapi.ChangeFolderChange
				}

				if _, _, err := s.changeLog.RecordChange(ctx, tx, originSyncID, sourceKey, parentSourceKey, kind, 0, false); err != nil {
					return err
				}

				if changeID, err = tx.GetMaxChangeID(ctx); err != nil {
					return err
				}
			}
		}

		now := time.Now()

		for _, folder := range []*db.Object{oldParent, newParent} {
			if folder.Type == mapi.ObjectTypeFolder {
				if err := s.stampCommitTime(ctx, tx, folder.ID, now); err != nil {
					return err
				}
			}
		}

		return nil
	}); err != nil {
		return err
	}

	if changeID != 0 {
		s.notifyChanges(originSyncID, changeID)
	}

	return nil
}

// moveTableMirror rebuilds the moved object's table rows under its new
// folder.
func (s *Server) moveTableMirror(ctx context.Context, tx db.Transaction, objectID, newParentID mapi.ObjectID) error {
	if _, err := tx.DeleteTableProperties(ctx, []mapi.ObjectID{objectID}); err != nil {
		return err
	}

	mirrored, err := tx.GetProperties(ctx, objectID, props.ListedTags())
	if err != nil {
		return err
	}

	for _, prop := range mirrored {
		if err := tx.UpsertTableProperty(ctx, newParentID, prop); err != nil {
			return err
		}
	}

	return nil
}

// DeleteObjects removes the subtrees under the given roots according to
// flags. On a failed hard delete the returned error is a *PartialError and
// the returned list holds the committed prefix.
func (s *Server) DeleteObjects(ctx context.Context, rootIDs []mapi.ObjectID, flags mapi.DeleteFlags) ([]DeleteItem, error) {
	ctx = s.withReporter(ctx)

	deleted, err := s.cascade.Delete(ctx, rootIDs, flags)

	if len(deleted) > 0 {
		if maxID, maxErr := db.ClientReadType(ctx, s.client, func(ctx context.Context, rd db.ReadOnly) (uint64, error) {
			return rd.GetMaxChangeID(ctx)
		}); maxErr == nil && maxID > 0 {
			s.notifyChanges(0, maxID)
		} else if maxErr != nil {
			logrus.WithError(maxErr).Error("Failed to read max change id after delete")
		}
	}

	return deleted, err
}

// SetAttachment stores an attachment payload and records its size on the
// attachment object.
func (s *Server) SetAttachment(ctx context.Context, attachmentID mapi.ObjectID, payload []byte) error {
	ctx = s.withReporter(ctx)

	return s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		object, err := tx.GetObject(ctx, attachmentID)
		if err != nil {
			return err
		}

		if object.Type != mapi.ObjectTypeAttachment {
			return fmt.Errorf("%w: %v is a %v, not an attachment", mapi.ErrInvalidType, attachmentID, object.Type)
		}

		if err := s.props.Write(ctx, tx, object.ParentID, db.NewIntProperty(attachmentID, mapi.PropTagMessageSize, int64(len(payload)))); err != nil {
			return err
		}

		return s.blobs.Set(attachmentID, payload)
	})
}

// GetAttachment loads an attachment payload.
func (s *Server) GetAttachment(ctx context.Context, attachmentID mapi.ObjectID) ([]byte, error) {
	return s.blobs.Get(attachmentID)
}

// GetObject loads one hierarchy object.
func (s *Server) GetObject(ctx context.Context, objectID mapi.ObjectID) (*db.Object, error) {
	ctx = s.withReporter(ctx)

	return db.ClientReadType(ctx, s.client, func(ctx context.Context, rd db.ReadOnly) (*db.Object, error) {
		return rd.GetObject(ctx, objectID)
	})
}

// ResolveSourceKey maps a source key back to its object id.
func (s *Server) ResolveSourceKey(ctx context.Context, key mapi.SourceKey) (mapi.ObjectID, error) {
	ctx = s.withReporter(ctx)

	return db.ClientReadType(ctx, s.client, func(ctx context.Context, rd db.ReadOnly) (mapi.ObjectID, error) {
		return s.index.Resolve(ctx, rd, key)
	})
}

// GetChanges serves one differential sync request.
func (s *Server) GetChanges(ctx context.Context, req GetChangesRequest) (uint64, []db.Change, error) {
	return s.changeLog.GetChanges(s.withReporter(ctx), req)
}

// RecordDirectoryChange records one address book mutation.
func (s *Server) RecordDirectoryChange(ctx context.Context, kind mapi.ChangeType, sourceKey, parentSourceKey mapi.SourceKey) error {
	ctx = s.withReporter(ctx)

	return s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		return s.changeLog.RecordDirectoryChange(ctx, tx, kind, sourceKey, parentSourceKey)
	})
}

// RegisterSync registers a new sync cursor and returns its id.
func (s *Server) RegisterSync(ctx context.Context, rootSourceKey mapi.SourceKey, syncType mapi.SyncType) (uint32, error) {
	return s.changeLog.SetSyncStatus(s.withReporter(ctx), rootSourceKey, syncType)
}

// AdvanceSync persists a cursor's new watermark. Moving backward is ignored.
func (s *Server) AdvanceSync(ctx context.Context, syncID uint32, lastChangeID uint64) error {
	return s.changeLog.UpdateSyncStatus(s.withReporter(ctx), syncID, lastChangeID)
}

// RemoveSync drops a cursor.
func (s *Server) RemoveSync(ctx context.Context, syncID uint32) error {
	return s.changeLog.RemoveSyncStatus(s.withReporter(ctx), syncID)
}

// SubscribeSync returns a channel carrying the max change id visible after
// each commit that did not originate from the given cursor.
func (s *Server) SubscribeSync(syncID uint32) <-chan uint64 {
	return s.changeLog.Subscribe(syncID)
}

// UnsubscribeSync stops a cursor's notifications.
func (s *Server) UnsubscribeSync(syncID uint32) {
	s.changeLog.Unsubscribe(syncID)
}

// ResetFolderCounters recomputes a folder's counters from its child rows and
// returns how many were drifted.
func (s *Server) ResetFolderCounters(ctx context.Context, folderID mapi.ObjectID) (int, error) {
	return s.counters.Reset(s.withReporter(ctx), s.client, folderID)
}

// StartRetentionSweep launches the background change log retention task.
func (s *Server) StartRetentionSweep(ctx context.Context) {
	s.sweeperLock.Lock()
	defer s.sweeperLock.Unlock()

	if s.sweeperStarted {
		return
	}

	s.sweeper.Start(s.withReporter(ctx))
	s.sweeperStarted = true
}

// Close shuts the server down: the sweeper, all watchers and subscriber
// channels, the attachment store and the database.
func (s *Server) Close(ctx context.Context) error {
	s.sweeperLock.Lock()
	if s.sweeperStarted {
		s.sweeper.Stop()
		s.sweeperStarted = false
	}
	s.sweeperLock.Unlock()

	s.changeLog.CloseSubscribers()

	s.watchersLock.Lock()
	for w := range s.watchers {
		w.Close()
		delete(s.watchers, w)
	}
	s.watchersLock.Unlock()

	if err := s.blobs.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close attachment store")
	}

	return s.client.Close()
}

// notifyChanges fans a committed change out to subscribed cursors and
// watchers. Always called after the owning transaction has committed.
func (s *Server) notifyChanges(originSyncID uint32, maxChangeID uint64) {
	s.changeLog.NotifyCommitted(originSyncID, maxChangeID)
	s.Publish(events.ChangesCommitted{MaxChangeID: maxChangeID})
}

// stampCommitTime bumps a folder's last-local-commit-time. Lock order
// position 4, always taken last.
func (s *Server) stampCommitTime(ctx context.Context, tx db.Transaction, folderID mapi.ObjectID, now time.Time) error {
	if err := tx.LockCommitTime(ctx, folderID); err != nil {
		return err
	}

	folder, err := tx.GetObject(ctx, folderID)
	if err != nil {
		return err
	}

	return s.props.Write(ctx, tx, folder.ParentID, db.NewTimeProperty(folderID, mapi.PropTagLocalCommitTimeMax, now))
}

// validateParent enforces the hierarchy shape: folders live under stores or
// folders, messages under folders, attachments and recipients under
// messages.
func validateParent(typ, parentType mapi.ObjectType) error {
	ok := false

	switch typ {
	case mapi.ObjectTypeFolder:
		ok = parentType == mapi.ObjectTypeStore || parentType == mapi.ObjectTypeFolder
	case mapi.ObjectTypeMessage:
		ok = parentType == mapi.ObjectTypeFolder
	case mapi.ObjectTypeAttachment, mapi.ObjectTypeRecipient:
		ok = parentType == mapi.ObjectTypeMessage
	}

	if !ok {
		return fmt.Errorf("%w: a %v cannot live under a %v", mapi.ErrInvalidParameter, typ, parentType)
	}

	return nil
}

// additionDeltas is the counter contribution of one object appearing in a
// folder.
func additionDeltas(typ mapi.ObjectType, flags mapi.ObjectFlags, msgFlags mapi.MessageFlags) mapi.CounterDeltas {
	var deltas mapi.CounterDeltas

	switch typ {
	case mapi.ObjectTypeMessage:
		switch {
		case flags.Has(mapi.ObjectFlagDeleted):
			if flags.Has(mapi.ObjectFlagAssociated) {
				deltas.Add(mapi.CounterDeletedAssocMessages, 1)
			} else {
				deltas.Add(mapi.CounterDeletedMessages, 1)
			}
		case flags.Has(mapi.ObjectFlagAssociated):
			deltas.Add(mapi.CounterAssocContents, 1)
		default:
			deltas.Add(mapi.CounterContents, 1)

			if !msgFlags.Has(mapi.MsgFlagRead) {
				deltas.Add(mapi.CounterUnread, 1)
			}
		}

	case mapi.ObjectTypeFolder:
		if flags.Has(mapi.ObjectFlagDeleted) {
			deltas.Add(mapi.CounterDeletedFolders, 1)
		} else {
			deltas.Add(mapi.CounterSubfolders, 1)
		}
	}

	return deltas
}

// removalDeltas is the inverse of additionDeltas.
func removalDeltas(typ mapi.ObjectType, flags mapi.ObjectFlags, msgFlags mapi.MessageFlags) mapi.CounterDeltas {
	deltas := additionDeltas(typ, flags, msgFlags)

	for kind := range deltas {
		deltas[kind] = -deltas[kind]
	}

	return deltas
}

// modifyChangeKind maps a property write on an object to the change record
// it owes.
func modifyChangeKind(object *db.Object, readStateOnly bool) (mapi.ChangeType, bool) {
	switch object.Type {
	case mapi.ObjectTypeMessage:
		if object.ParentID == 0 {
			return 0, false
		}

		if readStateOnly {
			return mapi.ChangeMessageFlags, true
		}

		return mapi.ChangeMessageChange, true

	case mapi.ObjectTypeFolder:
		if object.ParentID == 0 || object.Flags.Has(mapi.ObjectFlagSearchFolder) {
			return 0, false
		}

		return mapi.ChangeFolderChange, true

	default:
		return 0, false
	}
}
