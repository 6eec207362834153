package sqlite3

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3/utils"
	v0 "github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3/v0"
	"github.com/sirupsen/logrus"
)

type Migration interface {
	Run(ctx context.Context, tx utils.QueryWrapper) error
}

var migrationList = []Migration{
	&v0.Migration{},
}

const versionTableName = "kopano_version"

func RunMigrations(ctx context.Context, tx utils.QueryWrapper) error {
	dbVersion, err := getDatabaseVersion(ctx, tx)
	if err != nil {
		return fmt.Errorf("failed to get db version: %w", err)
	}

	if dbVersion < 0 {
		logrus.Debug("Version table does not exist, running all migrations")

		for idx, m := range migrationList {
			logrus.Debugf("Running migration for version %v", idx)

			if err := m.Run(ctx, tx); err != nil {
				return fmt.Errorf("failed to run migration %v: %w", idx, err)
			}
		}

		if err := createVersionTable(ctx, tx); err != nil {
			return err
		}

		if err := updateDBVersion(ctx, tx, len(migrationList)-1); err != nil {
			return fmt.Errorf("failed to update db version: %w", err)
		}

		logrus.Debug("Migrations completed")

		return nil
	}

	logrus.Debugf("DB version is %v", dbVersion)

	for i := dbVersion + 1; i < len(migrationList); i++ {
		logrus.Debugf("Running migration for version %v", i)

		if err := migrationList[i].Run(ctx, tx); err != nil {
			return err
		}
	}

	if err := updateDBVersion(ctx, tx, len(migrationList)-1); err != nil {
		return fmt.Errorf("failed to update db version: %w", err)
	}

	return nil
}

// getDatabaseVersion returns -1 if the version table does not exist or the
// version information contained within.
func getDatabaseVersion(ctx context.Context, tx utils.QueryWrapper) (int, error) {
	query := fmt.Sprintf("SELECT `name` FROM sqlite_master WHERE `type` = 'table' AND `name` NOT LIKE 'sqlite_%%' AND `name` = '%v'", versionTableName)

	if _, err := utils.MapQueryRow[string](ctx, tx, query); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return -1, nil
		}

		return 0, err
	}

	versionQuery := fmt.Sprintf("SELECT `version` FROM %v WHERE `id` = 0", versionTableName)

	return utils.MapQueryRow[int](ctx, tx, versionQuery)
}

func createVersionTable(ctx context.Context, tx utils.QueryWrapper) error {
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %v (`id` integer NOT NULL PRIMARY KEY, `version` integer NOT NULL)", versionTableName)

	if _, err := utils.ExecQuery(ctx, tx, query); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	return nil
}

func updateDBVersion(ctx context.Context, tx utils.QueryWrapper, version int) error {
	query := fmt.Sprintf("INSERT INTO %v (`id`, `version`) VALUES (0, ?) ON CONFLICT(`id`) DO UPDATE SET `version` = excluded.`version`", versionTableName)

	if _, err := utils.ExecQuery(ctx, tx, query, version); err != nil {
		return err
	}

	return nil
}
