package ics

import (
	"context"
	"fmt"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/metrics"
	"github.com/Kopano-dev/kopano-core-sub010/security"
)

// Restriction filters content sync against the current row state of an
// object rather than the logged change alone.
type Restriction interface {
	Match(ctx context.Context, rd db.ReadOnly, objectID mapi.ObjectID) (bool, error)
}

// GetChangesRequest is the differential sync request. SinceChangeID zero
// asks for an initial snapshot.
type GetChangesRequest struct {
	RootSourceKey mapi.SourceKey
	SyncID        uint32
	SinceChangeID uint64
	SyncType      mapi.SyncType
	Flags         mapi.SyncFlags
	Restriction   Restriction
}

// GetChanges serves a differential change set for one cursor. Results come
// back ordered by change id ascending together with the highest id observed,
// which the caller persists as its new cursor via UpdateSyncStatus. The
// whole call runs in one transaction; a mid-call error aborts it whole.
func (l *ChangeLog) GetChanges(ctx context.Context, req GetChangesRequest) (uint64, []db.Change, error) {
	if !req.SyncType.Valid() {
		return 0, nil, fmt.Errorf("%w: sync type %v", mapi.ErrInvalidType, req.SyncType)
	}

	var (
		maxID   uint64
		changes []db.Change
	)

	if err := l.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		var err error

		switch req.SyncType {
		case mapi.SyncContents:
			maxID, changes, err = l.getContentChanges(ctx, tx, req)
		case mapi.SyncHierarchy:
			maxID, changes, err = l.getHierarchyChanges(ctx, tx, req)
		case mapi.SyncAddressBook:
			maxID, changes, err = l.getDirectoryChanges(ctx, tx, req)
		}

		return err
	}); err != nil {
		return 0, nil, err
	}

	metrics.ChangesServedAdd(len(changes))

	return maxID, changes, nil
}

// resolveRoot maps the request's root source key to its folder and enforces
// the sync permission model: the system root needs administrator rights,
// everything else the given right on the resolved folder. A nil folder with
// a nil error means the system root.
func (l *ChangeLog) resolveRoot(ctx context.Context, tx db.Transaction, req GetChangesRequest, right security.Right) (*db.Object, error) {
	if req.RootSourceKey.IsZero() {
		// A zero root key addresses the system root: the unscoped,
		// server-wide change stream reserved for administrators.
		if !l.security.IsAdmin(ctx) {
			return nil, mapi.ErrNoAccess
		}

		return nil, nil
	}

	folderID, err := l.index.Resolve(ctx, tx, req.RootSourceKey)
	if err != nil {
		return nil, err
	}

	if !l.security.IsAdmin(ctx) {
		if err := l.security.CheckPermission(ctx, folderID, right); err != nil {
			return nil, err
		}
	}

	folder, err := tx.GetObject(ctx, folderID)
	if err != nil {
		return nil, err
	}

	if folder.Type != mapi.ObjectTypeFolder {
		return nil, fmt.Errorf("%w: sync root %v is a %v", mapi.ErrInvalidType, folderID, folder.Type)
	}

	return folder, nil
}

func (l *ChangeLog) getContentChanges(ctx context.Context, tx db.Transaction, req GetChangesRequest) (uint64, []db.Change, error) {
	folder, err := l.resolveRoot(ctx, tx, req, security.RightReadAny)
	if err != nil {
		return 0, nil, err
	}

	// The system root has no folder rows to enumerate; it serves the change
	// stream itself, from the log's beginning when SinceChangeID is zero.
	if folder == nil || req.SinceChangeID != 0 {
		return l.contentDelta(ctx, tx, req)
	}

	return l.contentSnapshot(ctx, tx, req, folder)
}

// contentSnapshot builds the initial full snapshot: one synthetic new entry
// per live, restriction-matching message in the folder, all tagged with the
// current max change id.
func (l *ChangeLog) contentSnapshot(ctx context.Context, tx db.Transaction, req GetChangesRequest, folder *db.Object) (uint64, []db.Change, error) {
	maxID, err := tx.GetMaxChangeID(ctx)
	if err != nil {
		return 0, nil, err
	}

	children, err := tx.GetObjectsByParent(ctx, folder.ID)
	if err != nil {
		return 0, nil, err
	}

	var changes []db.Change

	for _, child := range children {
		if child.Type != mapi.ObjectTypeMessage || child.Flags.Has(mapi.ObjectFlagDeleted) {
			continue
		}

		if !wantAssociation(req.Flags, child.Flags.Has(mapi.ObjectFlagAssociated)) {
			continue
		}

		if req.Restriction != nil {
			match, err := req.Restriction.Match(ctx, tx, child.ID)
			if err != nil {
				return 0, nil, err
			}

			if !match {
				continue
			}
		}

		sourceKey, err := l.index.GetOrCreate(ctx, tx, child.ID)
		if err != nil {
			return 0, nil, err
		}

		changes = append(changes, db.Change{
			ID:              maxID,
			SourceKey:       sourceKey,
			ParentSourceKey: req.RootSourceKey,
			Type:            mapi.ChangeMessageNew,
		})

		if req.SyncID != 0 {
			if err := tx.AddSyncedMessage(ctx, db.SyncedMessage{
				SyncID:          req.SyncID,
				ChangeID:        maxID,
				SourceKey:       sourceKey,
				ParentSourceKey: req.RootSourceKey,
			}); err != nil {
				return 0, nil, err
			}
		}
	}

	return maxID, changes, nil
}

func (l *ChangeLog) contentDelta(ctx context.Context, tx db.Transaction, req GetChangesRequest) (uint64, []db.Change, error) {
	mask := mapi.ChangeMessageNew | mapi.ChangeMessageChange

	if req.Flags.Has(mapi.SyncFlagReadState) {
		mask |= mapi.ChangeMessageFlags
	}

	if !req.Flags.Has(mapi.SyncFlagNoDeletions) {
		mask |= mapi.ChangeMessageHardDelete

		if !req.Flags.Has(mapi.SyncFlagNoSoftDeletions) {
			mask |= mapi.ChangeMessageSoftDelete
		}
	}

	// A zero root key (system root) leaves the stream unscoped.
	var scope []mapi.SourceKey

	if !req.RootSourceKey.IsZero() {
		scope = []mapi.SourceKey{req.RootSourceKey}
	}

	rows, err := tx.GetChangesSince(ctx, req.SinceChangeID, mask, scope)
	if err != nil {
		return 0, nil, err
	}

	synced := make(map[string]uint64)

	if req.SyncID != 0 {
		msgs, err := tx.GetSyncedMessages(ctx, req.SyncID)
		if err != nil {
			return 0, nil, err
		}

		for _, msg := range msgs {
			synced[string(msg.SourceKey)] = msg.ChangeID
		}
	}

	maxID := req.SinceChangeID

	var changes []db.Change

	for _, row := range rows {
		if row.ID > maxID {
			maxID = row.ID
		}

		if row.Type.IsDelete() {
			changes = append(changes, row)
			delete(synced, string(row.SourceKey))

			continue
		}

		entry, keep, err := l.reevaluate(ctx, tx, req, row, synced)
		if err != nil {
			return 0, nil, err
		}

		if !keep {
			continue
		}

		changes = append(changes, entry)

		if req.SyncID != 0 && !entry.Type.IsDelete() {
			if err := tx.AddSyncedMessage(ctx, db.SyncedMessage{
				SyncID:          req.SyncID,
				ChangeID:        entry.ID,
				SourceKey:       entry.SourceKey,
				ParentSourceKey: entry.ParentSourceKey,
			}); err != nil {
				return 0, nil, err
			}
		}
	}

	return maxID, changes, nil
}

// reevaluate decides what a logged new/change row means for this cursor
// right now: the row state may have moved on since the change was recorded,
// and the restriction is checked against the current state, not the logged
// one.
func (l *ChangeLog) reevaluate(ctx context.Context, tx db.Transaction, req GetChangesRequest, row db.Change, synced map[string]uint64) (db.Change, bool, error) {
	syncedAt, known := synced[string(row.SourceKey)]

	// The originating cursor already holds anything it recorded itself.
	if known && syncedAt >= row.ID {
		return db.Change{}, false, nil
	}

	objectID, err := l.index.Resolve(ctx, tx, row.SourceKey)
	if db.IsErrNotFound(err) {
		// Hard deleted since; the delete row covers it.
		return db.Change{}, false, nil
	} else if err != nil {
		return db.Change{}, false, err
	}

	object, err := tx.GetObject(ctx, objectID)
	if db.IsErrNotFound(err) {
		return db.Change{}, false, nil
	} else if err != nil {
		return db.Change{}, false, err
	}

	if object.Flags.Has(mapi.ObjectFlagDeleted) {
		return db.Change{}, false, nil
	}

	if req.Restriction != nil {
		match, err := req.Restriction.Match(ctx, tx, objectID)
		if err != nil {
			return db.Change{}, false, err
		}

		if !match {
			if !known {
				return db.Change{}, false, nil
			}

			// The client has it but it no longer matches: phase it out.
			row.Type = mapi.ChangeMessageSoftDelete
			delete(synced, string(row.SourceKey))

			return row, true, nil
		}
	}

	// Matching but never synced counts as new for this cursor regardless of
	// what kind of change was logged.
	if !known && row.Type != mapi.ChangeMessageNew {
		row.Type = mapi.ChangeMessageNew
	}

	return row, true, nil
}

func (l *ChangeLog) getHierarchyChanges(ctx context.Context, tx db.Transaction, req GetChangesRequest) (uint64, []db.Change, error) {
	folder, err := l.resolveRoot(ctx, tx, req, security.RightFolderVisible)
	if err != nil {
		return 0, nil, err
	}

	// System root: admins get the unscoped folder change stream, from the
	// log's beginning when SinceChangeID is zero.
	if folder == nil {
		return l.hierarchyDelta(ctx, tx, req, nil)
	}

	subtree, err := l.collectSubtree(ctx, tx, folder, req.RootSourceKey)
	if err != nil {
		return 0, nil, err
	}

	if req.SinceChangeID == 0 {
		maxID, err := tx.GetMaxChangeID(ctx)
		if err != nil {
			return 0, nil, err
		}

		changes := make([]db.Change, 0, len(subtree.folders))

		for _, entry := range subtree.folders {
			changes = append(changes, db.Change{
				ID:              maxID,
				SourceKey:       entry.sourceKey,
				ParentSourceKey: entry.parentSourceKey,
				Type:            mapi.ChangeFolderNew,
			})
		}

		return maxID, changes, nil
	}

	return l.hierarchyDelta(ctx, tx, req, subtree.parentKeys)
}

func (l *ChangeLog) hierarchyDelta(ctx context.Context, tx db.Transaction, req GetChangesRequest, parentKeys []mapi.SourceKey) (uint64, []db.Change, error) {
	mask := mapi.ChangeFolderNew | mapi.ChangeFolderChange

	if !req.Flags.Has(mapi.SyncFlagNoDeletions) {
		mask |= mapi.ChangeFolderHardDelete

		if !req.Flags.Has(mapi.SyncFlagNoSoftDeletions) {
			mask |= mapi.ChangeFolderSoftDelete
		}
	}

	rows, err := tx.GetChangesSince(ctx, req.SinceChangeID, mask, parentKeys)
	if err != nil {
		return 0, nil, err
	}

	maxID := req.SinceChangeID

	for _, row := range rows {
		if row.ID > maxID {
			maxID = row.ID
		}
	}

	return maxID, rows, nil
}

type subtreeFolder struct {
	sourceKey       mapi.SourceKey
	parentSourceKey mapi.SourceKey
}

type subtree struct {
	// folders lists the live descendant folders, excluding the root itself.
	folders []subtreeFolder

	// parentKeys holds the source keys of every folder that may parent a
	// change in the subtree, the root included.
	parentKeys []mapi.SourceKey
}

// collectSubtree walks the live folder tree under root. Search folders are
// invisible to synchronization.
func (l *ChangeLog) collectSubtree(ctx context.Context, tx db.Transaction, root *db.Object, rootSourceKey mapi.SourceKey) (subtree, error) {
	result := subtree{parentKeys: []mapi.SourceKey{rootSourceKey}}

	type frame struct {
		id        mapi.ObjectID
		sourceKey mapi.SourceKey
	}

	level := []frame{{id: root.ID, sourceKey: rootSourceKey}}

	for len(level) > 0 {
		var next []frame

		for _, parent := range level {
			children, err := tx.GetObjectsByParent(ctx, parent.id)
			if err != nil {
				return subtree{}, err
			}

			for _, child := range children {
				if child.Type != mapi.ObjectTypeFolder || child.Flags.Has(mapi.ObjectFlagDeleted) || child.Flags.Has(mapi.ObjectFlagSearchFolder) {
					continue
				}

				sourceKey, err := l.index.GetOrCreate(ctx, tx, child.ID)
				if err != nil {
					return subtree{}, err
				}

				result.folders = append(result.folders, subtreeFolder{
					sourceKey:       sourceKey,
					parentSourceKey: parent.sourceKey,
				})

				result.parentKeys = append(result.parentKeys, sourceKey)

				next = append(next, frame{id: child.ID, sourceKey: sourceKey})
			}
		}

		level = next
	}

	return result, nil
}

// getDirectoryChanges serves address book sync. The root source key is
// ignored; scope comes from the caller's directory company instead.
func (l *ChangeLog) getDirectoryChanges(ctx context.Context, tx db.Transaction, req GetChangesRequest) (uint64, []db.Change, error) {
	maxID, err := tx.GetMaxABChangeID(ctx)
	if err != nil {
		return 0, nil, err
	}

	if req.SinceChangeID == 0 {
		keys, err := l.directory.VisibleObjects(ctx)
		if err != nil {
			return 0, nil, err
		}

		changes := make([]db.Change, 0, len(keys))

		for _, key := range keys {
			changes = append(changes, db.Change{
				ID:        maxID,
				SourceKey: key,
				Type:      mapi.ChangeABNew,
			})
		}

		return maxID, changes, nil
	}

	rows, err := tx.GetABChangesSince(ctx, req.SinceChangeID)
	if err != nil {
		return 0, nil, err
	}

	maxSeen := req.SinceChangeID

	var changes []db.Change

	for _, row := range rows {
		if row.ID > maxSeen {
			maxSeen = row.ID
		}

		inScope, err := l.directory.InScope(ctx, row.SourceKey)
		if err != nil {
			return 0, nil, err
		}

		if inScope {
			changes = append(changes, row)
		}
	}

	return maxSeen, changes, nil
}

// wantAssociation reports whether a message stream (associated or not) is
// part of the requested sync.
func wantAssociation(flags mapi.SyncFlags, associated bool) bool {
	if associated {
		return flags.Has(mapi.SyncFlagAssociated)
	}

	return flags == 0 || flags.Has(mapi.SyncFlagNormal) || !flags.Has(mapi.SyncFlagAssociated)
}
