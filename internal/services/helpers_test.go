package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/notify"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
)

// newSvcDB opens a migrated in-memory database with the badge catalog seeded.
func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := repo.SeedBadges(context.Background(), db); err != nil {
		t.Fatalf("seed badges: %v", err)
	}
	return db
}

// recNotifier records every request and reports it delivered.
type recNotifier struct {
	mu   sync.Mutex
	reqs []notify.Request
}

func (r *recNotifier) Notify(_ context.Context, req notify.Request) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return true, nil
}

func (r *recNotifier) byKind(k domain.NotificationKind) []notify.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Request
	for _, q := range r.reqs {
		if q.Kind == k {
			out = append(out, q)
		}
	}
	return out
}

func (r *recNotifier) to(recipient string) []notify.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Request
	for _, q := range r.reqs {
		if q.RecipientID == recipient {
			out = append(out, q)
		}
	}
	return out
}

// recEnqueuer records enqueued item IDs.
type recEnqueuer struct {
	mu  sync.Mutex
	ids []string
}

func (e *recEnqueuer) Enqueue(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
	return true
}

func (e *recEnqueuer) queued() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

// seedItem inserts an item with defaults: tenant t1, approved, Found,
// owned by "finder".
func seedItem(t *testing.T, db *gorm.DB, it domain.Item) *domain.Item {
	t.Helper()
	if it.TenantID == "" {
		it.TenantID = "t1"
	}
	if it.OwnerID == "" {
		it.OwnerID = "finder"
	}
	if it.Status == "" {
		it.Status = domain.ItemFound
	}
	if it.ModerationStatus == "" {
		it.ModerationStatus = domain.ModerationApproved
	}
	if it.Category == "" {
		it.Category = "Electronics"
	}
	if it.Title == "" {
		it.Title = "Black iPhone"
	}
	if err := repo.CreateItem(context.Background(), db, &it); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return &it
}

func mustItem(t *testing.T, db *gorm.DB, id string) *domain.Item {
	t.Helper()
	it, err := repo.GetItem(context.Background(), db, id)
	if err != nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return it
}

func at(min int) time.Time {
	return time.Date(2025, 5, 1, 12, min, 0, 0, time.UTC)
}

func nopLog() zerolog.Logger { return zerolog.Nop() }
