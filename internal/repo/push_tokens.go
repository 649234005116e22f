package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

// SavePushToken registers token for userID. A token already registered to
// another user moves to userID (devices change hands on sign-in).
func SavePushToken(ctx context.Context, db *gorm.DB, userID, token string) error {
	pt := &domain.PushToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id"}),
		}).
		Create(pt).Error
}

// ListPushTokens returns the device tokens registered for userID.
func ListPushTokens(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).Model(&domain.PushToken{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("token", &out).Error
	return out, err
}

// DeletePushToken removes a token the push service reported as dead.
func DeletePushToken(ctx context.Context, db *gorm.DB, token string) error {
	return db.WithContext(ctx).Where("token = ?", token).Delete(&domain.PushToken{}).Error
}
