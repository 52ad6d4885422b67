// Package dbtest opens a migrated in-memory database for store-backed tests.
package dbtest

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pos-system/internal/database"
)

// New returns a fresh schema private to t. The pool holds a single
// connection, so transactions from concurrent goroutines run one at a time.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewStore wraps New in a store with the default retry budget.
func NewStore(t testing.TB) *database.Store {
	return database.NewStore(New(t), 3)
}

// RecordLocks returns a func listing the table of every query run on db
// with a row lock clause. sqlite drops the clause when rendering, so this is
// how tests see which rows a transaction asked to lock.
func RecordLocks(t testing.TB, db *gorm.DB) func() []string {
	t.Helper()

	var (
		mu     sync.Mutex
		tables []string
	)
	err := db.Callback().Query().Before("gorm:query").Register("dbtest:record_locks", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		tables = append(tables, tx.Statement.Table)
	})
	require.NoError(t, err)

	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(tables)
	}
}
