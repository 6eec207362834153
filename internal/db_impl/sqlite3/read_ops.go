package sqlite3

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3/utils"
	v0 "github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3/v0"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/bradenaw/juniper/xslices"
)

type readOps struct {
	qw utils.QueryWrapper
}

func scanObject(scanner utils.RowScanner) (*db.Object, error) {
	obj := new(db.Object)

	var parent sql.NullInt64

	if err := scanner.Scan(&obj.ID, &parent, &obj.Type, &obj.OwnerID, &obj.Flags); err != nil {
		return nil, err
	}

	if parent.Valid {
		obj.ParentID = mapi.ObjectID(parent.Int64)
	}

	return obj, nil
}

func scanProperty(scanner utils.RowScanner) (db.Property, error) {
	var prop db.Property

	err := scanner.Scan(&prop.ObjectID, &prop.Tag, &prop.ValueInt, &prop.ValueStr, &prop.ValueBin)

	return prop, err
}

func scanChange(scanner utils.RowScanner) (db.Change, error) {
	var (
		change     db.Change
		recordedAt int64
	)

	if err := scanner.Scan(&change.ID, &change.OriginSyncID, &change.SourceKey, &change.ParentSourceKey, &change.Type, &change.Flags, &recordedAt); err != nil {
		return db.Change{}, err
	}

	change.RecordedAt = unixTime(recordedAt)

	return change, nil
}

const objectColumns = "`id`, `parent`, `type`, `owner`, `flags`"
const changeColumns = "`id`, `sync_id`, `sourcekey`, `parentsourcekey`, `change_type`, `flags`, `recorded_at`"

func (r readOps) GetObject(ctx context.Context, id mapi.ObjectID) (*db.Object, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE `%v` = ?",
		objectColumns,
		v0.HierarchyTableName,
		v0.HierarchyFieldID,
	)

	return utils.MapQueryRowFn(ctx, r.qw, query, scanObject, id)
}

func (r readOps) ObjectExists(ctx context.Context, id mapi.ObjectID) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %v WHERE `%v` = ? LIMIT 1",
		v0.HierarchyTableName,
		v0.HierarchyFieldID,
	)

	return utils.QueryExists(ctx, r.qw, query, id)
}

func (r readOps) GetObjectsByParent(ctx context.Context, parentID mapi.ObjectID) ([]*db.Object, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE `%v` = ?",
		objectColumns,
		v0.HierarchyTableName,
		v0.HierarchyFieldParent,
	)

	return utils.MapQueryRowsFn(ctx, r.qw, query, scanObject, parentID)
}

func (r readOps) GetObjectsByParents(ctx context.Context, parentIDs []mapi.ObjectID) ([]*db.Object, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %v FROM %v WHERE `%v` IN (%v)",
		objectColumns,
		v0.HierarchyTableName,
		v0.HierarchyFieldParent,
		utils.GenSQLIn(len(parentIDs)),
	)

	return utils.MapQueryRowsFn(ctx, r.qw, query, scanObject, utils.MapSliceToAny(parentIDs)...)
}

func (r readOps) GetObjectCount(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %v", v0.HierarchyTableName)

	return utils.MapQueryRow[int](ctx, r.qw, query)
}

func (r readOps) GetProperty(ctx context.Context, objectID mapi.ObjectID, tag mapi.PropTag) (db.Property, error) {
	query := fmt.Sprintf("SELECT `%v`, `%v`, `%v`, `%v`, `%v` FROM %v WHERE `%v` = ? AND `%v` = ?",
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
		v0.PropertiesFieldValueInt,
		v0.PropertiesFieldValueStr,
		v0.PropertiesFieldValueBin,
		v0.PropertiesTableName,
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
	)

	return utils.MapQueryRowFn(ctx, r.qw, query, scanProperty, objectID, tag)
}

func (r readOps) GetProperties(ctx context.Context, objectID mapi.ObjectID, tags []mapi.PropTag) ([]db.Property, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT `%v`, `%v`, `%v`, `%v`, `%v` FROM %v WHERE `%v` = ? AND `%v` IN (%v)",
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
		v0.PropertiesFieldValueInt,
		v0.PropertiesFieldValueStr,
		v0.PropertiesFieldValueBin,
		v0.PropertiesTableName,
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
		utils.GenSQLIn(len(tags)),
	)

	args := append([]any{objectID}, utils.MapSliceToAny(tags)...)

	return utils.MapQueryRowsFn(ctx, r.qw, query, scanProperty, args...)
}

func (r readOps) GetPropertyForObjects(ctx context.Context, ids []mapi.ObjectID, tag mapi.PropTag) (map[mapi.ObjectID]db.Property, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT `%v`, `%v`, `%v`, `%v`, `%v` FROM %v WHERE `%v` = ? AND `%v` IN (%v)",
		v0.PropertiesFieldObjectID,
		v0.PropertiesFieldTag,
		v0.PropertiesFieldValueInt,
		v0.PropertiesFieldValueStr,
		v0.PropertiesFieldValueBin,
		v0.PropertiesTableName,
		v0.PropertiesFieldTag,
		v0.PropertiesFieldObjectID,
		utils.GenSQLIn(len(ids)),
	)

	args := append([]any{tag}, utils.MapSliceToAny(ids)...)

	props, err := utils.MapQueryRowsFn(ctx, r.qw, query, scanProperty, args...)
	if err != nil {
		return nil, err
	}

	result := make(map[mapi.ObjectID]db.Property, len(props))

	for _, prop := range props {
		result[prop.ObjectID] = prop
	}

	return result, nil
}

func (r readOps) GetTableProperty(ctx context.Context, folderID, objectID mapi.ObjectID, tag mapi.PropTag) (db.Property, error) {
	query := fmt.Sprintf("SELECT `%v`, `%v`, `%v`, `%v`, `%v` FROM %v WHERE `%v` = ? AND `%v` = ? AND `%v` = ?",
		v0.TPropertiesFieldObjectID,
		v0.TPropertiesFieldTag,
		v0.TPropertiesFieldValueInt,
		v0.TPropertiesFieldValueStr,
		v0.TPropertiesFieldValueBin,
		v0.TPropertiesTableName,
		v0.TPropertiesFieldFolderID,
		v0.TPropertiesFieldObjectID,
		v0.TPropertiesFieldTag,
	)

	return utils.MapQueryRowFn(ctx, r.qw, query, scanProperty, folderID, objectID, tag)
}

func (r readOps) GetObjectIDByIndexedProperty(ctx context.Context, tag mapi.PropTag, value []byte) (mapi.ObjectID, error) {
	query := fmt.Sprintf("SELECT `%v` FROM %v WHERE `%v` = ? AND `%v` = ?",
		v0.IndexedPropertiesFieldObjectID,
		v0.IndexedPropertiesTableName,
		v0.IndexedPropertiesFieldTag,
		v0.IndexedPropertiesFieldValue,
	)

	return utils.MapQueryRow[mapi.ObjectID](ctx, r.qw, query, tag, value)
}

func (r readOps) GetIndexedProperty(ctx context.Context, objectID mapi.ObjectID, tag mapi.PropTag) ([]byte, error) {
	query := fmt.Sprintf("SELECT `%v` FROM %v WHERE `%v` = ? AND `%v` = ?",
		v0.IndexedPropertiesFieldValue,
		v0.IndexedPropertiesTableName,
		v0.IndexedPropertiesFieldObjectID,
		v0.IndexedPropertiesFieldTag,
	)

	return utils.MapQueryRow[[]byte](ctx, r.qw, query, objectID, tag)
}

func (r readOps) GetMaxChangeID(ctx context.Context) (uint64, error) {
	query := fmt.Sprintf("SELECT IFNULL(MAX(`%v`), 0) FROM %v",
		v0.ChangesFieldID,
		v0.ChangesTableName,
	)

	return utils.MapQueryRow[uint64](ctx, r.qw, query)
}

func (r readOps) GetChangesSince(ctx context.Context, sinceID uint64, mask mapi.ChangeType, parentKeys []mapi.SourceKey) ([]db.Change, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE `%v` > ? AND (`%v` & ?) != 0",
		changeColumns,
		v0.ChangesTableName,
		v0.ChangesFieldID,
		v0.ChangesFieldChangeType,
	)

	args := []any{sinceID, mask}

	if parentKeys != nil {
		if len(parentKeys) == 0 {
			return nil, nil
		}

		query += fmt.Sprintf(" AND `%v` IN (%v)",
			v0.ChangesFieldParentSourceKey,
			utils.GenSQLIn(len(parentKeys)),
		)

		args = append(args, xslices.Map(parentKeys, func(k mapi.SourceKey) any { return []byte(k) })...)
	}

	query += fmt.Sprintf(" ORDER BY `%v` ASC", v0.ChangesFieldID)

	return utils.MapQueryRowsFn(ctx, r.qw, query, scanChange, args...)
}

func (r readOps) GetChangeCount(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %v", v0.ChangesTableName)

	return utils.MapQueryRow[int](ctx, r.qw, query)
}

func (r readOps) GetMaxABChangeID(ctx context.Context) (uint64, error) {
	query := fmt.Sprintf("SELECT IFNULL(MAX(`%v`), 0) FROM %v",
		v0.ChangesFieldID,
		v0.ABChangesTableName,
	)

	return utils.MapQueryRow[uint64](ctx, r.qw, query)
}

func (r readOps) GetABChangesSince(ctx context.Context, sinceID uint64) ([]db.Change, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE `%v` > ? ORDER BY `%v` ASC",
		changeColumns,
		v0.ABChangesTableName,
		v0.ChangesFieldID,
		v0.ChangesFieldID,
	)

	return utils.MapQueryRowsFn(ctx, r.qw, query, scanChange, sinceID)
}

func (r readOps) GetSyncState(ctx context.Context, syncID uint32) (db.SyncState, error) {
	query := fmt.Sprintf("SELECT `%v`, `%v`, `%v`, `%v` FROM %v WHERE `%v` = ?",
		v0.SyncsFieldSyncID,
		v0.SyncsFieldSourceKey,
		v0.SyncsFieldChangeID,
		v0.SyncsFieldSyncType,
		v0.SyncsTableName,
		v0.SyncsFieldSyncID,
	)

	return utils.MapQueryRowFn(ctx, r.qw, query, func(scanner utils.RowScanner) (db.SyncState, error) {
		var state db.SyncState

		err := scanner.Scan(&state.SyncID, &state.RootSourceKey, &state.LastChangeID, &state.Type)

		return state, err
	}, syncID)
}

func (r readOps) GetOldestSyncChangeID(ctx context.Context) (uint64, error) {
	query := fmt.Sprintf("SELECT MIN(`%v`) FROM %v",
		v0.SyncsFieldChangeID,
		v0.SyncsTableName,
	)

	var oldest sql.NullInt64

	if _, err := utils.MapQueryRowFn(ctx, r.qw, query, func(scanner utils.RowScanner) (struct{}, error) {
		return struct{}{}, scanner.Scan(&oldest)
	}); err != nil {
		return 0, err
	}

	if !oldest.Valid {
		return 0, db.ErrNotFound
	}

	return uint64(oldest.Int64), nil
}

func (r readOps) GetSyncedMessages(ctx context.Context, syncID uint32) ([]db.SyncedMessage, error) {
	query := fmt.Sprintf("SELECT `%v`, `%v`, `%v`, `%v` FROM %v WHERE `%v` = ?",
		v0.SyncedMessagesFieldSyncID,
		v0.SyncedMessagesFieldChangeID,
		v0.SyncedMessagesFieldSourceKey,
		v0.SyncedMessagesFieldParentSourceKey,
		v0.SyncedMessagesTableName,
		v0.SyncedMessagesFieldSyncID,
	)

	return utils.MapQueryRowsFn(ctx, r.qw, query, func(scanner utils.RowScanner) (db.SyncedMessage, error) {
		var msg db.SyncedMessage

		err := scanner.Scan(&msg.SyncID, &msg.ChangeID, &msg.SourceKey, &msg.ParentSourceKey)

		return msg, err
	}, syncID)
}
