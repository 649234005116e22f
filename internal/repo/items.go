// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Item model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a caller's transaction. They hold no business rules; the
// services package decides which transitions are legal.
//
// Error semantics:
//   - A missing item yields gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - A guarded update that matched no row yields ErrStaleVersion.
//   - Other database errors are returned unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleVersion is returned when an optimistic update finds the row has
// moved on since it was read.
var ErrStaleVersion = errors.New("stale version")

// ItemFilter narrows item listings. Empty fields are ignored.
type ItemFilter struct {
	TenantID         string
	OwnerID          string
	Status           domain.ItemStatus
	ModerationStatus domain.ModerationStatus
	Category         string
}

func (f ItemFilter) apply(q *gorm.DB) *gorm.DB {
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ModerationStatus != "" {
		q = q.Where("moderation_status = ?", f.ModerationStatus)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	return q
}

// CreateItem inserts it, filling ID, Version and timestamps when unset.
func CreateItem(ctx context.Context, db *gorm.DB, it *domain.Item) error {
	now := time.Now().UTC()
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Version == 0 {
		it.Version = 1
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now
	return db.WithContext(ctx).Create(it).Error
}

// GetItem fetches an item by ID, or ErrNotFound.
func GetItem(ctx context.Context, db *gorm.DB, id string) (*domain.Item, error) {
	var it domain.Item
	if err := db.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

// CountItems returns the number of items matching f.
func CountItems(ctx context.Context, db *gorm.DB, f ItemFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Item{})).Count(&n).Error
	return n, err
}

// ListItemsPage returns a page of items matching f, newest first.
func ListItemsPage(ctx context.Context, db *gorm.DB, f ItemFilter, offset, limit int) ([]domain.Item, error) {
	var out []domain.Item
	err := f.apply(db.WithContext(ctx)).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListCandidates returns every approved item of the given status in a tenant,
// newest first, optionally excluding one owner's items. Used by matching.
func ListCandidates(ctx context.Context, db *gorm.DB, tenantID string, status domain.ItemStatus, excludeOwner string) ([]domain.Item, error) {
	q := ItemFilter{TenantID: tenantID, Status: status, ModerationStatus: domain.ModerationApproved}.apply(db.WithContext(ctx))
	if excludeOwner != "" {
		q = q.Where("owner_id <> ?", excludeOwner)
	}
	var out []domain.Item
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// UpdateItemGuarded applies updates to the item only if its version still
// equals version, and bumps the version. It returns ErrNotFound when the item
// does not exist and ErrStaleVersion when another writer got there first.
func UpdateItemGuarded(ctx context.Context, db *gorm.DB, id string, version int, updates map[string]any) error {
	u := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		u[k] = v
	}
	u["version"] = gorm.Expr("version + 1")
	u["updated_at"] = time.Now().UTC()

	res := db.WithContext(ctx).Model(&domain.Item{}).
		Where("id = ? AND version = ?", id, version).
		Updates(u)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Item{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrStaleVersion
	}
	return nil
}

// CountRecoveredByFinder counts found items owned by finderID that reached
// the recovered moderation state.
func CountRecoveredByFinder(ctx context.Context, db *gorm.DB, finderID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Item{}).
		Where("owner_id = ? AND moderation_status = ? AND status IN ?",
			finderID, domain.ModerationRecovered, []domain.ItemStatus{domain.ItemFound, domain.ItemRecovered}).
		Count(&n).Error
	return n, err
}

// CountFoundReports counts items ownerID posted as Found, including those
// that have since moved on to handover or recovery.
func CountFoundReports(ctx context.Context, db *gorm.DB, ownerID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Item{}).
		Where("owner_id = ? AND status IN ?", ownerID,
			[]domain.ItemStatus{domain.ItemFound, domain.ItemPendingHandover, domain.ItemRecovered}).
		Count(&n).Error
	return n, err
}
