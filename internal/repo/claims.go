package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

// CreateClaim inserts a new pending claim.
func CreateClaim(ctx context.Context, db *gorm.DB, itemID, claimantID, finderID, message string) (*domain.Claim, error) {
	now := time.Now().UTC()
	c := &domain.Claim{
		ID:                  uuid.NewString(),
		ItemID:              itemID,
		ClaimantID:          claimantID,
		FinderID:            finderID,
		VerificationMessage: message,
		Status:              domain.ClaimPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetClaim fetches a claim by ID, or ErrNotFound.
func GetClaim(ctx context.Context, db *gorm.DB, id string) (*domain.Claim, error) {
	var c domain.Claim
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClaimsByItem returns an item's claims, oldest first.
func ListClaimsByItem(ctx context.Context, db *gorm.DB, itemID string) ([]domain.Claim, error) {
	var out []domain.Claim
	err := db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// HasPendingClaim reports whether claimantID already has a pending claim on itemID.
func HasPendingClaim(ctx context.Context, db *gorm.DB, itemID, claimantID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Claim{}).
		Where("item_id = ? AND claimant_id = ? AND status = ?", itemID, claimantID, domain.ClaimPending).
		Count(&n).Error
	return n > 0, err
}

// GetApprovedClaim returns the approved claim for itemID, or ErrNotFound.
func GetApprovedClaim(ctx context.Context, db *gorm.DB, itemID string) (*domain.Claim, error) {
	var c domain.Claim
	err := db.WithContext(ctx).
		Where("item_id = ? AND status = ?", itemID, domain.ClaimApproved).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TransitionClaim moves a claim from one status to another. It reports
// whether a row changed; false means the claim was no longer in from.
func TransitionClaim(ctx context.Context, db *gorm.DB, id string, from, to domain.ClaimStatus) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Claim{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

// RejectOtherPending rejects every pending claim on itemID except keepID and
// returns the claims it rejected. Run it inside the approving transaction.
func RejectOtherPending(ctx context.Context, db *gorm.DB, itemID, keepID string) ([]domain.Claim, error) {
	var others []domain.Claim
	if err := db.WithContext(ctx).
		Where("item_id = ? AND id <> ? AND status = ?", itemID, keepID, domain.ClaimPending).
		Find(&others).Error; err != nil {
		return nil, err
	}
	if len(others) == 0 {
		return nil, nil
	}
	ids := make([]string, len(others))
	for i := range others {
		ids[i] = others[i].ID
		others[i].Status = domain.ClaimRejected
	}
	err := db.WithContext(ctx).Model(&domain.Claim{}).
		Where("id IN ? AND status = ?", ids, domain.ClaimPending).
		Updates(map[string]any{"status": domain.ClaimRejected, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return nil, err
	}
	return others, nil
}
