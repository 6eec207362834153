package v0

import (
	"context"
	"fmt"

	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3/utils"
	"github.com/bradenaw/juniper/xmaps"
	"github.com/bradenaw/juniper/xslices"
	"github.com/sirupsen/logrus"
)

type Migration struct{}

func (m Migration) Run(ctx context.Context, tx utils.QueryWrapper) error {
	tables := []Table{
		&HierarchyTable{},
		&PropertiesTable{},
		&TPropertiesTable{},
		&IndexedPropertiesTable{},
		&MVPropertiesTable{},
		&ACLTable{},
		&DeferredUpdatesTable{},
		&ChangesTable{},
		&ABChangesTable{},
		&SyncsTable{},
		&SyncedMessagesTable{},
		&SequencesTable{},
	}

	tableNames := xslices.Map(tables, func(t Table) string {
		return t.Name()
	})

	query := fmt.Sprintf("SELECT `name` FROM sqlite_master WHERE `type` = 'table' AND `name` NOT LIKE 'sqlite_%%' AND `name` IN (%v)",
		utils.GenSQLIn(len(tables)))

	args := utils.MapSliceToAny(tableNames)

	sqlTables, err := utils.MapQueryRows[string](ctx, tx, query, args...)
	if err != nil {
		return err
	}

	tablesSet := xmaps.SetFromSlice(sqlTables)

	for _, table := range tables {
		if !tablesSet.Contains(table.Name()) {
			logrus.Debugf("Table '%v' does not exist, creating", table.Name())

			if err := table.Create(ctx, tx); err != nil {
				return err
			}
		}
	}

	return nil
}
