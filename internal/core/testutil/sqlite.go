// Package testutil holds fixtures shared by package test suites.
package testutil

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/song-requests/internal/core/datamodel/integrity"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/invoice"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/organization"
	"github.com/frahmantamala/song-requests/internal/core/datamodel/request"
)

// OpenSQLite returns a migrated in-memory database pinned to one connection,
// since each pooled connection would otherwise see its own empty database.
func OpenSQLite() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&organization.Organization{},
		&request.Request{},
		&integrity.Issue{},
		&invoice.Invoice{},
	); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}
