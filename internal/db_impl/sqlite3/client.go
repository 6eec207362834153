package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3/utils"
	"github.com/Kopano-dev/kopano-core-sub010/reporter"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

type Client struct {
	db    *sql.DB
	lock  sync.RWMutex
	debug bool
}

func NewClient(dir string, name string, debug bool) (*Client, bool, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, err
	}

	path := getDatabasePath(dir, name)

	// Check if the database already exists.
	exists, err := pathExists(path)
	if err != nil {
		return nil, false, err
	}

	client, err := sql.Open("sqlite3", getDatabaseConn(path))
	if err != nil {
		return nil, false, err
	}

	return &Client{db: client, debug: debug}, !exists, nil
}

func (c *Client) Init(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable db pragma: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("failed to enable db pragma: %w", err)
	}

	return c.wrapTx(ctx, func(ctx context.Context, tx *sql.Tx, entry *logrus.Entry) error {
		entry.Debugf("Running database migrations")

		var qw utils.QueryWrapper = &utils.TXWrapper{TX: tx}

		if c.debug {
			qw = &utils.DebugQueryWrapper{QW: qw, Entry: entry}
		}

		if err := RunMigrations(ctx, qw); err != nil {
			return fmt.Errorf("%w: %v", db.ErrMigrationFailed, err)
		}

		return nil
	})
}

func (c *Client) Read(ctx context.Context, op func(context.Context, db.ReadOnly) error) error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var qw utils.QueryWrapper = &utils.DBWrapper{DB: c.db}

	if c.debug {
		entry := logrus.WithField("rd", uuid.NewString())

		entry.Debug("Begin read")
		defer entry.Debug("End read")

		qw = &utils.DebugQueryWrapper{Entry: entry, QW: qw}
	}

	return op(ctx, &readOps{qw: qw})
}

func (c *Client) Write(ctx context.Context, op func(context.Context, db.Transaction) error) error {
	return c.wrapTx(ctx, func(ctx context.Context, tx *sql.Tx, entry *logrus.Entry) error {
		var qw utils.QueryWrapper = &utils.TXWrapper{TX: tx}

		if c.debug {
			qw = &utils.DebugQueryWrapper{QW: qw, Entry: entry}
		}

		return op(ctx, &writeOps{readOps: readOps{qw: qw}, qw: qw})
	})
}

func (c *Client) wrapTx(ctx context.Context, op func(context.Context, *sql.Tx, *logrus.Entry) error) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	var entry *logrus.Entry

	if c.debug {
		entry = logrus.WithField("tx", uuid.NewString())
	} else {
		entry = logrus.WithField("tx", "tx")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if c.debug {
		entry.Debugf("Begin transaction")
	}

	defer func() {
		if v := recover(); v != nil {
			reporter.ExceptionWithContext(ctx,
				"Panic during database transaction",
				reporter.Context{"panic": v},
			)

			if err := tx.Rollback(); err != nil {
				panic(fmt.Errorf("rolling back while recovering (%v): %w", v, err))
			}

			panic(v)
		}
	}()

	if err := op(ctx, tx, entry); err != nil {
		if c.debug {
			entry.Debugf("Rolling back transaction")
		}

		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("rolling back transaction: %w", rerr)
		}

		return err
	}

	if c.debug {
		entry.Debugf("Committing transaction")
	}

	if err := tx.Commit(); err != nil {
		reporter.MessageWithContext(ctx,
			"Failed to commit database transaction",
			reporter.Context{"error": err},
		)

		return fmt.Errorf("%w: %v", db.ErrTransactionFailed, err)
	}

	return nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func getDatabasePath(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf("%v.db", name))
}

func getDatabaseConn(path string) string {
	return fmt.Sprintf("file:%v?cache=shared&_fk=1", url.PathEscape(path))
}

func pathExists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}
