package v0

import (
	"context"

	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3/utils"
)

type Table interface {
	Name() string
	Create(ctx context.Context, tx utils.QueryWrapper) error
}

func execQueries(ctx context.Context, tx utils.QueryWrapper, queries []string) error {
	for _, q := range queries {
		if _, err := utils.ExecQuery(ctx, tx, q); err != nil {
			return err
		}
	}

	return nil
}

type HierarchyTable struct{}

func (HierarchyTable) Name() string {
	return HierarchyTableName
}

func (HierarchyTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		// AUTOINCREMENT so hierarchy ids are never reused after hard delete.
		"CREATE TABLE `hierarchy` (`id` integer NOT NULL PRIMARY KEY AUTOINCREMENT, `parent` integer NULL, `type` integer NOT NULL, `owner` integer NOT NULL DEFAULT 0, `flags` integer NOT NULL DEFAULT 0, CONSTRAINT `hierarchy_parent` FOREIGN KEY (`parent`) REFERENCES `hierarchy` (`id`))",
		"CREATE INDEX `hierarchy_parent_idx` ON `hierarchy` (`parent`)",
		"CREATE INDEX `hierarchy_parent_type_idx` ON `hierarchy` (`parent`, `type`)",
	}

	return execQueries(ctx, tx, queries)
}

type PropertiesTable struct{}

func (PropertiesTable) Name() string {
	return PropertiesTableName
}

func (PropertiesTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `properties` (`object_id` integer NOT NULL, `tag` integer NOT NULL, `val_int` integer NOT NULL DEFAULT 0, `val_str` text NOT NULL DEFAULT '', `val_bin` blob NULL, PRIMARY KEY (`object_id`, `tag`))",
	}

	return execQueries(ctx, tx, queries)
}

type TPropertiesTable struct{}

func (TPropertiesTable) Name() string {
	return TPropertiesTableName
}

func (TPropertiesTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `tproperties` (`folder_id` integer NOT NULL, `object_id` integer NOT NULL, `tag` integer NOT NULL, `val_int` integer NOT NULL DEFAULT 0, `val_str` text NOT NULL DEFAULT '', `val_bin` blob NULL, PRIMARY KEY (`folder_id`, `object_id`, `tag`))",
		"CREATE INDEX `tproperties_folder_tag_idx` ON `tproperties` (`folder_id`, `tag`)",
	}

	return execQueries(ctx, tx, queries)
}

type IndexedPropertiesTable struct{}

func (IndexedPropertiesTable) Name() string {
	return IndexedPropertiesTableName
}

func (IndexedPropertiesTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `indexedproperties` (`object_id` integer NOT NULL, `tag` integer NOT NULL, `val` blob NOT NULL, PRIMARY KEY (`object_id`, `tag`))",
		"CREATE UNIQUE INDEX `indexedproperties_tag_val_key` ON `indexedproperties` (`tag`, `val`)",
	}

	return execQueries(ctx, tx, queries)
}

type MVPropertiesTable struct{}

func (MVPropertiesTable) Name() string {
	return MVPropertiesTableName
}

func (MVPropertiesTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `mvproperties` (`object_id` integer NOT NULL, `tag` integer NOT NULL, `order_id` integer NOT NULL, `val_bin` blob NULL, PRIMARY KEY (`object_id`, `tag`, `order_id`))",
	}

	return execQueries(ctx, tx, queries)
}

type ACLTable struct{}

func (ACLTable) Name() string {
	return ACLTableName
}

func (ACLTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `acl` (`id` integer NOT NULL PRIMARY KEY AUTOINCREMENT, `folder_id` integer NOT NULL, `member_id` integer NOT NULL, `rights` integer NOT NULL DEFAULT 0)",
		"CREATE INDEX `acl_folder_idx` ON `acl` (`folder_id`)",
	}

	return execQueries(ctx, tx, queries)
}

type DeferredUpdatesTable struct{}

func (DeferredUpdatesTable) Name() string {
	return DeferredUpdatesTableName
}

func (DeferredUpdatesTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `deferredupdate` (`id` integer NOT NULL PRIMARY KEY AUTOINCREMENT, `object_id` integer NOT NULL, `folder_id` integer NOT NULL)",
		"CREATE INDEX `deferredupdate_object_idx` ON `deferredupdate` (`object_id`)",
	}

	return execQueries(ctx, tx, queries)
}

type ChangesTable struct{}

func (ChangesTable) Name() string {
	return ChangesTableName
}

func (ChangesTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		// AUTOINCREMENT keeps change ids strictly increasing even across the
		// delete-and-reinsert performed by the upsert.
		"CREATE TABLE `changes` (`id` integer NOT NULL PRIMARY KEY AUTOINCREMENT, `sync_id` integer NOT NULL DEFAULT 0, `sourcekey` blob NOT NULL, `parentsourcekey` blob NOT NULL, `change_type` integer NOT NULL, `flags` integer NOT NULL DEFAULT 0, `recorded_at` integer NOT NULL)",
		"CREATE UNIQUE INDEX `changes_psk_sk_type_key` ON `changes` (`parentsourcekey`, `sourcekey`, `change_type`)",
		"CREATE INDEX `changes_parent_idx` ON `changes` (`parentsourcekey`)",
	}

	return execQueries(ctx, tx, queries)
}

type ABChangesTable struct{}

func (ABChangesTable) Name() string {
	return ABChangesTableName
}

func (ABChangesTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `abchanges` (`id` integer NOT NULL PRIMARY KEY AUTOINCREMENT, `sync_id` integer NOT NULL DEFAULT 0, `sourcekey` blob NOT NULL, `parentsourcekey` blob NOT NULL, `change_type` integer NOT NULL, `flags` integer NOT NULL DEFAULT 0, `recorded_at` integer NOT NULL)",
		"CREATE UNIQUE INDEX `abchanges_psk_sk_type_key` ON `abchanges` (`parentsourcekey`, `sourcekey`, `change_type`)",
	}

	return execQueries(ctx, tx, queries)
}

type SyncsTable struct{}

func (SyncsTable) Name() string {
	return SyncsTableName
}

func (SyncsTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `syncs` (`sync_id` integer NOT NULL PRIMARY KEY AUTOINCREMENT, `sourcekey` blob NOT NULL, `change_id` integer NOT NULL DEFAULT 0, `sync_type` integer NOT NULL)",
	}

	return execQueries(ctx, tx, queries)
}

type SyncedMessagesTable struct{}

func (SyncedMessagesTable) Name() string {
	return SyncedMessagesTableName
}

func (SyncedMessagesTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `syncedmessages` (`sync_id` integer NOT NULL, `change_id` integer NOT NULL, `sourcekey` blob NOT NULL, `parentsourcekey` blob NOT NULL, PRIMARY KEY (`sync_id`, `sourcekey`))",
		"CREATE INDEX `syncedmessages_sourcekey_idx` ON `syncedmessages` (`sourcekey`)",
	}

	return execQueries(ctx, tx, queries)
}

type SequencesTable struct{}

func (SequencesTable) Name() string {
	return SequencesTableName
}

func (SequencesTable) Create(ctx context.Context, tx utils.QueryWrapper) error {
	queries := []string{
		"CREATE TABLE `sequences` (`name` text NOT NULL PRIMARY KEY, `value` integer NOT NULL DEFAULT 0)",
	}

	return execQueries(ctx, tx, queries)
}
