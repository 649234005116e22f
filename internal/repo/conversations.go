package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

// GetOrCreateConversation returns the conversation for (itemID, finderID,
// claimantID), creating it if absent. created reports whether this call
// inserted the row. The insert uses ON CONFLICT DO NOTHING against the
// unique parties index, so concurrent callers converge on a single row and
// an enclosing PostgreSQL transaction is never aborted by the race.
func GetOrCreateConversation(ctx context.Context, db *gorm.DB, itemID, finderID, claimantID string) (conv *domain.Conversation, created bool, err error) {
	if existing, err := findConversation(ctx, db, itemID, finderID, claimantID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	c := &domain.Conversation{
		ID:         uuid.NewString(),
		ItemID:     itemID,
		FinderID:   finderID,
		ClaimantID: claimantID,
		CreatedAt:  time.Now().UTC(),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return c, true, nil
	}
	existing, err := findConversation(ctx, db, itemID, finderID, claimantID)
	return existing, false, err
}

func findConversation(ctx context.Context, db *gorm.DB, itemID, finderID, claimantID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("item_id = ? AND finder_id = ? AND claimant_id = ?", itemID, finderID, claimantID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a conversation by ID, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsForUser returns conversations where userID is either party.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("finder_id = ? OR claimant_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
