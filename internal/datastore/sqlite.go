package datastore

import (
	"fmt"

	"github.com/botaniai/botaniai-go/internal/conf"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the SQLite database connection and runs migrations.
func (store *SQLiteStore) Open() error {
	db, err := gorm.Open(sqlite.Open(store.Settings.Output.SQLite.Path), &gorm.Config{
		Logger: createGormLogger(store.Settings.Debug),
	})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "SQLite", store.Settings.Output.SQLite.Path)
}

func (store *SQLiteStore) Close() error {
	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying SQLite connection: %w", err)
	}
	return sqlDB.Close()
}
