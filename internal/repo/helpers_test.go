package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

// newRepoDB opens a private in-memory database. With migrate=true the full
// schema (including raw indexes) is created.
func newRepoDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection so per-connection PRAGMAs hold for every query.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedItem(t *testing.T, db *gorm.DB, it domain.Item) *domain.Item {
	t.Helper()
	if it.TenantID == "" {
		it.TenantID = "t1"
	}
	if it.ModerationStatus == "" {
		it.ModerationStatus = domain.ModerationApproved
	}
	if it.Category == "" {
		it.Category = "Electronics"
	}
	if it.Title == "" {
		it.Title = "thing"
	}
	if err := CreateItem(context.Background(), db, &it); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return &it
}

func at(min int) time.Time {
	return time.Date(2025, 5, 1, 12, min, 0, 0, time.UTC)
}
