package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

// GetBadgeByName looks a catalog entry up by its unique name.
func GetBadgeByName(ctx context.Context, db *gorm.DB, name string) (*domain.Badge, error) {
	var b domain.Badge
	if err := db.WithContext(ctx).Where("name = ?", name).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// HasBadge reports whether userID already holds badgeID.
func HasBadge(ctx context.Context, db *gorm.DB, userID string, badgeID uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&n).Error
	return n > 0, err
}

// InsertUserBadge records the award. inserted is false when the user already
// held the badge (the unique index absorbed a concurrent duplicate).
func InsertUserBadge(ctx context.Context, db *gorm.DB, userID string, badgeID uint, tenantID string) (inserted bool, err error) {
	ub := &domain.UserBadge{
		ID:       uuid.NewString(),
		UserID:   userID,
		BadgeID:  badgeID,
		TenantID: tenantID,
		EarnedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ub)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListUserBadges returns a user's badges with catalog details, oldest first.
func ListUserBadges(ctx context.Context, db *gorm.DB, userID string) ([]domain.UserBadge, error) {
	var out []domain.UserBadge
	err := db.WithContext(ctx).
		Preload("Badge").
		Where("user_id = ?", userID).
		Order("earned_at ASC").
		Find(&out).Error
	return out, err
}
