package sqlite3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3/utils"
	v0 "github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3/v0"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

type writeOps struct {
	readOps
	qw utils.QueryWrapper
}

func (w writeOps) CreateObject(ctx context.Context, parentID mapi.ObjectID, typ mapi.ObjectType, ownerID uint32, flags mapi.ObjectFlags) (mapi.ObjectID, error) {
	query := fmt.Sprintf("INSERT INTO %v (`%v`, `%v`, `%v`, `%v`) VALUES (?,?,?,?) RETURNING `%v`",
		v0.HierarchyTableName,
		v0.HierarchyFieldParent,
		v0.HierarchyFieldType,
		v0.HierarchyFieldOwner,
		v0.HierarchyFieldFlags,
		v0.HierarchyFieldID,
	)

	var parent any

	if parentID != 0 {
		parent = parentID
	}

	return utils.MapQueryRow[mapi.ObjectID](ctx, w.qw, query, parent, typ, ownerID, flags)
}

func (w writeOps) SetObjectParent(ctx context.Context, id, parentID mapi.ObjectID) error {
	query := fmt.Sprintf("UPDATE %v SET `%v` = ? WHERE `%v` = ?",
		v0.HierarchyTableName,
		v0.HierarchyFieldParent,
		v0.HierarchyFieldID,
	)

	return utils.ExecQueryAndCheckUpdatedNotZero(ctx, w.qw, query, parentID, id)
}

func (w writeOps) AddObjectFlags(ctx context.Context, ids []mapi.ObjectID, flags mapi.ObjectFlags) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("UPDATE %v SET `%v` = `%v` | ? WHERE `%v` IN (%v)",
		v0.HierarchyTableName,
		v0.HierarchyFieldFlags,
		v0.HierarchyFieldFlags,
		v0.HierarchyFieldID,
		utils.GenSQLIn(len(ids)),
	)

	args := append([]any{flags}, utils.MapSliceToAny(ids)...)

	return utils.ExecQuery(ctx, w.qw, query, args...)
}

func (w writeOps) ClearObjectFlags(ctx context.Context, ids []mapi.ObjectID, flags mapi.ObjectFlags) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("UPDATE %v SET `%v` = `%v` & ~? WHERE `%v` IN (%v)",
		v0.HierarchyTableName,
		v0.HierarchyFieldFlags,
		v0.HierarchyFieldFlags,
		v0.HierarchyFieldID,
		utils.GenSQLIn(len(ids)),
	)

	args := append([]any{flags}, utils.MapSliceToAny(ids)...)

	return utils.ExecQuery(ctx, w.qw, query, args...)
}

func (w writeOps) DeleteObjects(ctx context.Context, ids []mapi.ObjectID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` IN (%v)",
		v0.HierarchyTableName,
		v0.HierarchyFieldID,
		utils.GenSQLIn(len(ids)),
	)

	return utils.ExecQuery(ctx, w.qw, query, utils.MapSliceToAny(ids)...)
}

// SQLite serializes writers on the connection, so the lock ops reduce to
// touching the rows in the contractual order. Engines with per-row locks
// implement these with locking reads.
func (w writeOps) LockObjects(ctx context.Context, ids []mapi.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf("SELECT `%v` FROM %v WHERE `%v` IN (%v)",
		v0.HierarchyFieldID,
		v0.HierarchyTableName,
		v0.HierarchyFieldID,
		utils.GenSQLIn(len(ids)),
	)

	_, err := utils.MapQueryRows[mapi.ObjectID](ctx, w.qw, query, utils.MapSliceToAny(ids)...)

	return err
}

func (w writeOps) UpsertProperty(ctx context.Context, prop db.Property) error {
	query := fmt.Sprintf("INSERT INTO %v (`%v`, `%v`, `%v`, `%v`, `%v`) VALUES (?,?,?,?,?) "+
		"ON CONFLICT(`%v`, `%v`) DO UPDATE SET `%v` = excluded.`%v`, `%v` = excluded.`%v`, `%v` = excluded.`%v`",
		v0.PropertiesTableName,
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
		v0.PropertiesFieldValueInt,
		v0.PropertiesFieldValueStr,
		v0.PropertiesFieldValueBin,
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
		v0.PropertiesFieldValueInt,
		v0.PropertiesFieldValueInt,
		v0.PropertiesFieldValueStr,
		v0.PropertiesFieldValueStr,
		v0.PropertiesFieldValueBin,
		v0.PropertiesFieldValueBin,
	)

	_, err := utils.ExecQuery(ctx, w.qw, query, prop.ObjectID, prop.Tag, prop.ValueInt, prop.ValueStr, prop.ValueBin)

	return err
}

func (w writeOps) UpsertTableProperty(ctx context.Context, folderID mapi.ObjectID, prop db.Property) error {
	query := fmt.Sprintf("INSERT INTO %v (`%v`, `%v`, `%v`, `%v`, `%v`, `%v`) VALUES (?,?,?,?,?,?) "+
		"ON CONFLICT(`%v`, `%v`, `%v`) DO UPDATE SET `%v` = excluded.`%v`, `%v` = excluded.`%v`, `%v` = excluded.`%v`",
		v0.TPropertiesTableName,
		v0.TPropertiesFieldFolderID,
		v0.TPropertiesFieldObjectID,
		v0.TPropertiesFieldTag,
		v0.TPropertiesFieldValueInt,
		v0.TPropertiesFieldValueStr,
		v0.TPropertiesFieldValueBin,
		v0.TPropertiesFieldFolderID,
		v0.TPropertiesFieldObjectID,
		v0.TPropertiesFieldTag,
		v0.TPropertiesFieldValueInt,
		v0.TPropertiesFieldValueInt,
		v0.TPropertiesFieldValueStr,
		v0.TPropertiesFieldValueStr,
		v0.TPropertiesFieldValueBin,
		v0.TPropertiesFieldValueBin,
	)

	_, err := utils.ExecQuery(ctx, w.qw, query, folderID, prop.ObjectID, prop.Tag, prop.ValueInt, prop.ValueStr, prop.ValueBin)

	return err
}

func (w writeOps) DeleteProperty(ctx context.Context, objectID mapi.ObjectID, tag mapi.PropTag) error {
	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` = ? AND `%v` = ?",
		v0.PropertiesTableName,
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
	)

	_, err := utils.ExecQuery(ctx, w.qw, query, objectID, tag)

	return err
}

func (w writeOps) DeleteObjectProperties(ctx context.Context, ids []mapi.ObjectID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` IN (%v)",
		v0.PropertiesTableName,
		v0.PropertiesFieldObjectID,
		utils.GenSQLIn(len(ids)),
	)

	return utils.ExecQuery(ctx, w.qw, query, utils.MapSliceToAny(ids)...)
}

func (w writeOps) DeleteTableProperties(ctx context.Context, ids []mapi.ObjectID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` IN (%v) OR `%v` IN (%v)",
		v0.TPropertiesTableName,
		v0.TPropertiesFieldObjectID,
		utils.GenSQLIn(len(ids)),
		v0.TPropertiesFieldFolderID,
		utils.GenSQLIn(len(ids)),
	)

	args := append(utils.MapSliceToAny(ids), utils.MapSliceToAny(ids)...)

	return utils.ExecQuery(ctx, w.qw, query, args...)
}

func (w writeOps) DeleteMultiValueProperties(ctx context.Context, ids []mapi.ObjectID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` IN (%v)",
		v0.MVPropertiesTableName,
		v0.MVPropertiesFieldObjectID,
		utils.GenSQLIn(len(ids)),
	)

	return utils.ExecQuery(ctx, w.qw, query, utils.MapSliceToAny(ids)...)
}

func (w writeOps) DeleteACLs(ctx context.Context, folderIDs []mapi.ObjectID) (int, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` IN (%v)",
		v0.ACLTableName,
		v0.ACLFieldFolderID,
		utils.GenSQLIn(len(folderIDs)),
	)

	return utils.ExecQuery(ctx, w.qw, query, utils.MapSliceToAny(folderIDs)...)
}

func (w writeOps) DeleteDeferredUpdates(ctx context.Context, ids []mapi.ObjectID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` IN (%v)",
		v0.DeferredUpdatesTableName,
		v0.DeferredUpdatesFieldObjectID,
		utils.GenSQLIn(len(ids)),
	)

	return utils.ExecQuery(ctx, w.qw, query, utils.MapSliceToAny(ids)...)
}

func (w writeOps) LockFolderCounters(ctx context.Context, folderIDs []mapi.ObjectID) error {
	if len(folderIDs) == 0 {
		return nil
	}

	counterTags := make([]any, 0, mapi.NumCounterKinds)

	for kind := mapi.CounterKind(0); kind < mapi.NumCounterKinds; kind++ {
		counterTags = append(counterTags, kind.Tag())
	}

	query := fmt.Sprintf("SELECT `%v` FROM %v WHERE `%v` IN (%v) AND `%v` IN (%v)",
		v0.PropertiesFieldObjectID,
		v0.PropertiesTableName,
		v0.PropertiesFieldObjectID,
		utils.GenSQLIn(len(folderIDs)),
		v0.PropertiesFieldTag,
		utils.GenSQLIn(len(counterTags)),
	)

	args := append(utils.MapSliceToAny(folderIDs), counterTags...)

	_, err := utils.MapQueryRows[mapi.ObjectID](ctx, w.qw, query, args...)

	return err
}

func (w writeOps) LockStoreSize(ctx context.Context, storeID mapi.ObjectID) error {
	query := fmt.Sprintf("SELECT `%v` FROM %v WHERE `%v` = ? AND `%v` = ?",
		v0.PropertiesFieldObjectID,
		v0.PropertiesTableName,
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
	)

	_, err := utils.MapQueryRows[mapi.ObjectID](ctx, w.qw, query, storeID, mapi.PropTagMessageSizeExtended)

	return err
}

func (w writeOps) LockCommitTime(ctx context.Context, folderID mapi.ObjectID) error {
	query := fmt.Sprintf("SELECT `%v` FROM %v WHERE `%v` = ? AND `%v` = ?",
		v0.PropertiesFieldObjectID,
		v0.PropertiesTableName,
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
	)

	_, err := utils.MapQueryRows[mapi.ObjectID](ctx, w.qw, query, folderID, mapi.PropTagLocalCommitTimeMax)

	return err
}

func (w writeOps) UpsertIndexedProperty(ctx context.Context, objectID mapi.ObjectID, tag mapi.PropTag, value []byte) error {
	query := fmt.Sprintf("INSERT INTO %v (`%v`, `%v`, `%v`) VALUES (?,?,?) "+
		"ON CONFLICT(`%v`, `%v`) DO UPDATE SET `%v` = excluded.`%v`",
		v0.IndexedPropertiesTableName,
		v0.IndexedPropertiesFieldObjectID,
		v0.IndexedPropertiesFieldTag,
		v0.IndexedPropertiesFieldValue,
		v0.IndexedPropertiesFieldObjectID,
		v0.IndexedPropertiesFieldTag,
		v0.IndexedPropertiesFieldValue,
		v0.IndexedPropertiesFieldValue,
	)

	_, err := utils.ExecQuery(ctx, w.qw, query, objectID, tag, value)

	return err
}

func (w writeOps) DeleteIndexedProperties(ctx context.Context, ids []mapi.ObjectID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` IN (%v)",
		v0.IndexedPropertiesTableName,
		v0.IndexedPropertiesFieldObjectID,
		utils.GenSQLIn(len(ids)),
	)

	return utils.ExecQuery(ctx, w.qw, query, utils.MapSliceToAny(ids)...)
}

func (w writeOps) DeleteIndexedValue(ctx context.Context, tag mapi.PropTag, value []byte) error {
	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` = ? AND `%v` = ?",
		v0.IndexedPropertiesTableName,
		v0.IndexedPropertiesFieldTag,
		v0.IndexedPropertiesFieldValue,
	)

	_, err := utils.ExecQuery(ctx, w.qw, query, tag, value)

	return err
}

func (w writeOps) NextSequence(ctx context.Context, name string) (uint64, error) {
	query := fmt.Sprintf("INSERT INTO %v (`%v`, `%v`) VALUES (?, 1) "+
		"ON CONFLICT(`%v`) DO UPDATE SET `%v` = `%v` + 1 RETURNING `%v`",
		v0.SequencesTableName,
		v0.SequencesFieldName,
		v0.SequencesFieldValue,
		v0.SequencesFieldName,
		v0.SequencesFieldValue,
		v0.SequencesFieldValue,
		v0.SequencesFieldValue,
	)

	return utils.MapQueryRow[uint64](ctx, w.qw, query, name)
}

func (w writeOps) UpsertChange(ctx context.Context, originSyncID uint32, sourceKey, parentSourceKey mapi.SourceKey, typ mapi.ChangeType, flags uint32) (uint64, error) {
	return w.upsertChangeRow(ctx, v0.ChangesTableName, originSyncID, sourceKey, parentSourceKey, typ, flags)
}

func (w writeOps) UpsertABChange(ctx context.Context, sourceKey, parentSourceKey mapi.SourceKey, typ mapi.ChangeType) (uint64, error) {
	return w.upsertChangeRow(ctx, v0.ABChangesTableName, 0, sourceKey, parentSourceKey, typ, 0)
}

// upsertChangeRow replaces any row with the same (parent, key, type) triple.
// OR REPLACE deletes the conflicting row and inserts a fresh one, so the
// returned id is always newly allocated and ids stay strictly increasing.
func (w writeOps) upsertChangeRow(ctx context.Context, table string, originSyncID uint32, sourceKey, parentSourceKey mapi.SourceKey, typ mapi.ChangeType, flags uint32) (uint64, error) {
	query := fmt.Sprintf("INSERT OR REPLACE INTO %v (`%v`, `%v`, `%v`, `%v`, `%v`, `%v`) VALUES (?,?,?,?,?,?) RETURNING `%v`",
		table,
		v0.ChangesFieldSyncID,
		v0.ChangesFieldSourceKey,
		v0.ChangesFieldParentSourceKey,
		v0.ChangesFieldChangeType,
		v0.ChangesFieldFlags,
		v0.ChangesFieldRecordedAt,
		v0.ChangesFieldID,
	)

	return utils.MapQueryRow[uint64](ctx, w.qw, query, originSyncID, keyBlob(sourceKey), keyBlob(parentSourceKey), typ, flags, time.Now().Unix())
}

// keyBlob binds a source key as a blob value. A nil key must bind as an empty
// blob rather than NULL: directory changes have no parent key and address
// book cursors have no root key, but the columns are NOT NULL.
func keyBlob(key mapi.SourceKey) []byte {
	if key == nil {
		return []byte{}
	}

	return []byte(key)
}

func (w writeOps) DeleteChangesBefore(ctx context.Context, maxID uint64, cutoff time.Time) (int, error) {
	var total int

	for _, table := range []string{v0.ChangesTableName, v0.ABChangesTableName} {
		query := fmt.Sprintf("DELETE FROM %v WHERE `%v` <= ? AND `%v` <= ?",
			table,
			v0.ChangesFieldID,
			v0.ChangesFieldRecordedAt,
		)

		count, err := utils.ExecQuery(ctx, w.qw, query, maxID, cutoff.Unix())
		if err != nil {
			return total, err
		}

		total += count
	}

	return total, nil
}

func (w writeOps) CreateSyncState(ctx context.Context, rootSourceKey mapi.SourceKey, typ mapi.SyncType) (uint32, error) {
	query := fmt.Sprintf("INSERT INTO %v (`%v`, `%v`, `%v`) VALUES (?,0,?) RETURNING `%v`",
		v0.SyncsTableName,
		v0.SyncsFieldSourceKey,
		v0.SyncsFieldChangeID,
		v0.SyncsFieldSyncType,
		v0.SyncsFieldSyncID,
	)

	return utils.MapQueryRow[uint32](ctx, w.qw, query, keyBlob(rootSourceKey), typ)
}

func (w writeOps) UpdateSyncState(ctx context.Context, syncID uint32, lastChangeID uint64) error {
	query := fmt.Sprintf("UPDATE %v SET `%v` = ? WHERE `%v` = ? AND `%v` <= ?",
		v0.SyncsTableName,
		v0.SyncsFieldChangeID,
		v0.SyncsFieldSyncID,
		v0.SyncsFieldChangeID,
	)

	updated, err := utils.ExecQuery(ctx, w.qw, query, lastChangeID, syncID, lastChangeID)
	if err != nil {
		return err
	}

	if updated == 0 {
		// Either the cursor is unknown or the caller tried to move it
		// backward; the latter is ignored.
		if _, err := w.GetSyncState(ctx, syncID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return db.ErrNotFound
			}

			return err
		}
	}

	return nil
}

func (w writeOps) DeleteSyncState(ctx context.Context, syncID uint32) error {
	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` = ?",
		v0.SyncsTableName,
		v0.SyncsFieldSyncID,
	)

	return utils.ExecQueryAndCheckUpdatedNotZero(ctx, w.qw, query, syncID)
}

func (w writeOps) AddSyncedMessage(ctx context.Context, msg db.SyncedMessage) error {
	query := fmt.Sprintf("INSERT OR REPLACE INTO %v (`%v`, `%v`, `%v`, `%v`) VALUES (?,?,?,?)",
		v0.SyncedMessagesTableName,
		v0.SyncedMessagesFieldSyncID,
		v0.SyncedMessagesFieldChangeID,
		v0.SyncedMessagesFieldSourceKey,
		v0.SyncedMessagesFieldParentSourceKey,
	)

	_, err := utils.ExecQuery(ctx, w.qw, query, msg.SyncID, msg.ChangeID, keyBlob(msg.SourceKey), keyBlob(msg.ParentSourceKey))

	return err
}

func (w writeOps) RemoveSyncedMessage(ctx context.Context, sourceKey mapi.SourceKey) (int, error) {
	query := fmt.Sprintf("DELETE FROM %v WHERE `%v` = ?",
		v0.SyncedMessagesTableName,
		v0.SyncedMessagesFieldSourceKey,
	)

	return utils.ExecQuery(ctx, w.qw, query, []byte(sourceKey))
}
