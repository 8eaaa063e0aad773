package utils

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemorySQLite is the SQLite path for a private in-memory database.
const MemorySQLite = ":memory:"

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// OpenGormPostgres wraps an already-opened Postgres pool in gorm.
// Pool settings and health checks stay with OpenPostgres.
func OpenGormPostgres(db *sql.DB) (*gorm.DB, error) {
	if db == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	return gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig())
}

// OpenSQLite opens (or creates) a SQLite database for local runs and tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	if path != MemorySQLite {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if path == MemorySQLite {
		// every connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	} else {
		db.Exec("PRAGMA journal_mode=WAL;")
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}
	return db, nil
}
