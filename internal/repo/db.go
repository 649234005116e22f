// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and PostgreSQL, schema migrations, and seed data.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

// Open opens the database selected by driver ("sqlite" or "postgres").
// For sqlite dsn is a file path; for postgres it is a connection URL.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return OpenSQLite(dsn)
	case "postgres", "postgresql":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// sqlitePragmas run on every new pooled connection, not just the first.
var sqlitePragmas = []string{"busy_timeout(5000)", "foreign_keys(1)", "synchronous(NORMAL)"}

func sqliteDSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep + "_pragma=" + p)
		sep = "&"
	}
	return b.String()
}

// OpenPostgres connects to PostgreSQL using a DSN or URL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set for postgres")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Instrument attaches OpenTelemetry spans to every query issued through db.
func Instrument(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin())
}

// AutoMigrate creates or updates every table plus the indexes GORM tags
// cannot express.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Item{},
		&domain.Claim{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.Notification{},
		&domain.Badge{},
		&domain.UserBadge{},
		&domain.ThankYouNote{},
		&domain.PushToken{},
		&domain.Idempotency{},
	); err != nil {
		return err
	}
	// At most one approved claim per item, and one pending claim per
	// claimant on an item, enforced by the database.
	for _, stmt := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_claims_item_approved ON claims (item_id) WHERE status = 'approved'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_claims_item_claimant_pending ON claims (item_id, claimant_id) WHERE status = 'pending'`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// BadgeCatalog is the fixed set of badges the platform awards.
var BadgeCatalog = []domain.Badge{
	{Name: domain.BadgeFirstPost, Description: "Posted your first item.", Icon: "pencil"},
	{Name: domain.BadgeGoodSamaritan, Description: "Reported 10 found items.", Icon: "heart"},
	{Name: domain.BadgeFirstReturn, Description: "Returned your first item to its owner.", Icon: "handshake"},
	{Name: domain.BadgeCampusHero, Description: "Returned 5 items to their owners.", Icon: "trophy"},
}

// SeedBadges inserts missing catalog entries. Existing rows are left alone,
// so it is safe to run on every start.
func SeedBadges(ctx context.Context, db *gorm.DB) error {
	for _, b := range BadgeCatalog {
		b := b
		if err := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&b).Error; err != nil {
			return err
		}
	}
	return nil
}

// IsDuplicate reports whether err is a unique-constraint violation. The
// pure-Go SQLite driver reports these as plain text, so the message is
// inspected as well.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
