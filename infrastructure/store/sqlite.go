// Package store opens the local SQLite database that backs the shopping
// cart and the document store.
package store

import (
	"fmt"

	"github.com/Laisky/errors/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultBusyTimeoutMs is how long SQLite waits on a locked database.
const DefaultBusyTimeoutMs = 3000

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Open opens the SQLite database at path and migrates models.
func Open(path string, models ...any) (*gorm.DB, error) {
	dsn := path
	if path != MemoryPath {
		dsn = fmt.Sprintf("%s?_busy_timeout=%d", path, DefaultBusyTimeoutMs)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}

	if path == MemoryPath {
		// Every pooled connection to :memory: is a separate database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "get sql.DB")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, errors.Wrap(err, "auto migrate")
		}
	}
	return db, nil
}
