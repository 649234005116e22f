package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

// CreateThankYouNote inserts a note. A second note from the same user for the
// same item yields ErrDuplicate.
func CreateThankYouNote(ctx context.Context, db *gorm.DB, itemID, fromUserID, toUserID, message string) (*domain.ThankYouNote, error) {
	n := &domain.ThankYouNote{
		ID:         uuid.NewString(),
		ItemID:     itemID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return n, nil
}

// ListThankYouNotes returns the notes addressed to userID, newest first.
func ListThankYouNotes(ctx context.Context, db *gorm.DB, userID string) ([]domain.ThankYouNote, error) {
	var out []domain.ThankYouNote
	err := db.WithContext(ctx).
		Where("to_user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
