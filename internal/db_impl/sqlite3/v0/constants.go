package v0

const HierarchyTableName = "hierarchy"
const HierarchyFieldID = "id"
const HierarchyFieldParent = "parent"
const HierarchyFieldType = "type"
const HierarchyFieldOwner = "owner"
const HierarchyFieldFlags = "flags"

const PropertiesTableName = "properties"
const PropertiesFieldObjectID = "object_id"
const PropertiesFieldTag = "tag"
const PropertiesFieldValueInt = "val_int"
const PropertiesFieldValueStr = "val_str"
const PropertiesFieldValueBin = "val_bin"

const TPropertiesTableName = "tproperties"
const TPropertiesFieldFolderID = "folder_id"
const TPropertiesFieldObjectID = "object_id"
const TPropertiesFieldTag = "tag"
const TPropertiesFieldValueInt = "val_int"
const TPropertiesFieldValueStr = "val_str"
const TPropertiesFieldValueBin = "val_bin"

const IndexedPropertiesTableName = "indexedproperties"
const IndexedPropertiesFieldObjectID = "object_id"
const IndexedPropertiesFieldTag = "tag"
const IndexedPropertiesFieldValue = "val"

const MVPropertiesTableName = "mvproperties"
const MVPropertiesFieldObjectID = "object_id"
const MVPropertiesFieldTag = "tag"
const MVPropertiesFieldOrderID = "order_id"
const MVPropertiesFieldValueBin = "val_bin"

const ACLTableName = "acl"
const ACLFieldID = "id"
const ACLFieldFolderID = "folder_id"
const ACLFieldMemberID = "member_id"
const ACLFieldRights = "rights"

const DeferredUpdatesTableName = "deferredupdate"
const DeferredUpdatesFieldID = "id"
const DeferredUpdatesFieldObjectID = "object_id"
const DeferredUpdatesFieldFolderID = "folder_id"

const ChangesTableName = "changes"
const ChangesFieldID = "id"
const ChangesFieldSyncID = "sync_id"
const ChangesFieldSourceKey = "sourcekey"
const ChangesFieldParentSourceKey = "parentsourcekey"
const ChangesFieldChangeType = "change_type"
const ChangesFieldFlags = "flags"
const ChangesFieldRecordedAt = "recorded_at"

const ABChangesTableName = "abchanges"

const SyncsTableName = "syncs"
const SyncsFieldSyncID = "sync_id"
const SyncsFieldSourceKey = "sourcekey"
const SyncsFieldChangeID = "change_id"
const SyncsFieldSyncType = "sync_type"

const SyncedMessagesTableName = "syncedmessages"
const SyncedMessagesFieldSyncID = "sync_id"
const SyncedMessagesFieldChangeID = "change_id"
const SyncedMessagesFieldSourceKey = "sourcekey"
const SyncedMessagesFieldParentSourceKey = "parentsourcekey"

const SequencesTableName = "sequences"
const SequencesFieldName = "name"
const SequencesFieldValue = "value"
