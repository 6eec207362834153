package db_impl

import (
	"os"
	"strconv"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl/sqlite3"
)

// NewSQLiteDB opens (or creates) the sqlite database backing one store
// server. The returned bool reports whether the database was newly created.
func NewSQLiteDB(dir, name string) (db.Client, bool, error) {
	debug, _ := strconv.ParseBool(os.Getenv("KOPANO_DB_DEBUG"))

	return sqlite3.NewClient(dir, name, debug)
}
