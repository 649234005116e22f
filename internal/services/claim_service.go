// Package services – ClaimService
//
// ClaimService drives the claim side of the return workflow:
//
//	Found item ──Submit──▶ pending claim ──Respond(approve)──▶ approved
//	                                     └─Respond(reject)───▶ rejected
//
// Approval is a single transaction: the claim flips pending→approved with a
// guarded update, every other pending claim on the item is rejected, the
// item moves to pending_return under its version token, and the finder and
// claimant get a conversation. A partial unique index on approved claims
// guarantees at most one winner when two approvals race. Notifications are
// sent only after the transaction commits.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/notify"
	"github.com/tbourn/go-campustrace-backend/internal/observability"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
)

const maxClaimMessageRunes = 2000

// ClaimService implements claim submission, review and recovery.
type ClaimService struct {
	DB       *gorm.DB
	Notifier notify.Notifier
	Badges   BadgeTriggers // optional
	Log      zerolog.Logger
}

// RespondResult describes the outcome of Respond. Conversation and Rejected
// are only populated on approval.
type RespondResult struct {
	Claim        domain.Claim
	Conversation *domain.Conversation
	Rejected     []domain.Claim
}

// Submit files a pending claim by claimantID on a Found item of tenantID.
func (s *ClaimService) Submit(ctx context.Context, tenantID, claimantID, itemID, message string) (*domain.Claim, error) {
	tr := otel.Tracer("services/ClaimService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("claimant.id", claimantID),
		),
	)
	defer span.End()

	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > maxClaimMessageRunes {
		return nil, ErrMessageTooLong
	}

	item, err := getTenantItem(ctx, s.DB, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID == claimantID {
		return nil, ErrSelfClaim
	}
	if item.Status != domain.ItemFound || item.ModerationStatus != domain.ModerationApproved {
		return nil, ErrItemNotClaimable
	}

	pending, err := repo.HasPendingClaim(ctx, s.DB, item.ID, claimantID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrDuplicateClaim
	}

	claim, err := repo.CreateClaim(ctx, s.DB, item.ID, claimantID, item.OwnerID, message)
	if err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrDuplicateClaim
		}
		return nil, err
	}
	observability.ClaimTransitions.WithLabelValues(string(domain.ClaimPending)).Inc()

	notify.MultiNotify(ctx, s.Notifier, s.Log, notify.Request{
		RecipientID: item.OwnerID,
		TenantID:    item.TenantID,
		Kind:        domain.KindClaim,
		Message:     fmt.Sprintf("Someone has claimed your found item %q.", item.Title),
		Link:        "/items/" + item.ID + "/claims",
	})
	return claim, nil
}

// ListForItem returns the claims on itemID. The item owner sees every
// claim; anyone else sees only their own.
func (s *ClaimService) ListForItem(ctx context.Context, tenantID, userID, itemID string) ([]domain.Claim, error) {
	item, err := getTenantItem(ctx, s.DB, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	claims, err := repo.ListClaimsByItem(ctx, s.DB, item.ID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID == userID {
		return claims, nil
	}
	mine := make([]domain.Claim, 0, 1)
	for _, c := range claims {
		if c.ClaimantID == userID {
			mine = append(mine, c)
		}
	}
	return mine, nil
}

// Respond approves or rejects a pending claim on behalf of its finder.
func (s *ClaimService) Respond(ctx context.Context, finderID, claimID string, approve bool) (*RespondResult, error) {
	tr := otel.Tracer("services/ClaimService")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("claim.id", claimID),
			attribute.String("finder.id", finderID),
			attribute.Bool("approve", approve),
		),
	)
	defer span.End()

	claim, err := repo.GetClaim(ctx, s.DB, claimID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	if claim.FinderID != finderID {
		return nil, ErrNotFinder
	}
	if claim.Status != domain.ClaimPending {
		return nil, ErrClaimNotPending
	}

	if !approve {
		return s.reject(ctx, claim)
	}
	return s.approve(ctx, claim)
}

func (s *ClaimService) reject(ctx context.Context, claim *domain.Claim) (*RespondResult, error) {
	ok, err := repo.TransitionClaim(ctx, s.DB, claim.ID, domain.ClaimPending, domain.ClaimRejected)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrClaimNotPending
	}
	claim.Status = domain.ClaimRejected
	observability.ClaimTransitions.WithLabelValues(string(domain.ClaimRejected)).Inc()

	item, err := repo.GetItem(ctx, s.DB, claim.ItemID)
	title := ""
	tenant := ""
	if err == nil {
		title, tenant = item.Title, item.TenantID
	}
	notify.MultiNotify(ctx, s.Notifier, s.Log, rejectedNotice(*claim, title, tenant))
	return &RespondResult{Claim: *claim}, nil
}

func (s *ClaimService) approve(ctx context.Context, claim *domain.Claim) (*RespondResult, error) {
	var (
		item     *domain.Item
		conv     *domain.Conversation
		rejected []domain.Claim
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.TransitionClaim(ctx, tx, claim.ID, domain.ClaimPending, domain.ClaimApproved)
		if err != nil {
			if repo.IsDuplicate(err) {
				return ErrConcurrentUpdate
			}
			return err
		}
		if !ok {
			return ErrClaimNotPending
		}

		if rejected, err = repo.RejectOtherPending(ctx, tx, claim.ItemID, claim.ID); err != nil {
			return err
		}

		if item, err = s.loadItem(ctx, tx, claim.ItemID); err != nil {
			return err
		}
		if item.Status != domain.ItemFound || item.ModerationStatus != domain.ModerationApproved {
			return ErrItemNotClaimable
		}
		err = repo.UpdateItemGuarded(ctx, tx, item.ID, item.Version, map[string]any{
			"moderation_status": domain.ModerationPendingReturn,
		})
		if errors.Is(err, repo.ErrStaleVersion) {
			return ErrConcurrentUpdate
		}
		if err != nil {
			return err
		}

		conv, _, err = repo.GetOrCreateConversation(ctx, tx, item.ID, claim.FinderID, claim.ClaimantID)
		return err
	})
	if err != nil {
		return nil, err
	}

	claim.Status = domain.ClaimApproved
	observability.ClaimTransitions.WithLabelValues(string(domain.ClaimApproved)).Inc()
	observability.ClaimTransitions.WithLabelValues(string(domain.ClaimRejected)).Add(float64(len(rejected)))

	link := "/messages/" + conv.ID
	reqs := []notify.Request{
		{
			RecipientID: claim.ClaimantID,
			TenantID:    item.TenantID,
			Kind:        domain.KindClaimApproved,
			Message:     fmt.Sprintf("Your claim for %q was approved. Arrange the handover in chat.", item.Title),
			Link:        link,
		},
		{
			RecipientID: claim.FinderID,
			TenantID:    item.TenantID,
			Kind:        domain.KindClaimApproved,
			Message:     fmt.Sprintf("You approved a claim for %q. Chat with the owner to hand it over.", item.Title),
			Link:        link,
		},
	}
	for _, r := range rejected {
		reqs = append(reqs, rejectedNotice(r, item.Title, item.TenantID))
	}
	notify.MultiNotify(ctx, s.Notifier, s.Log, reqs...)

	return &RespondResult{Claim: *claim, Conversation: conv, Rejected: rejected}, nil
}

// MarkRecovered closes the workflow without a handover code. Either the
// finder or the approved claimant may call it.
func (s *ClaimService) MarkRecovered(ctx context.Context, userID, itemID string) (*domain.Item, error) {
	tr := otel.Tracer("services/ClaimService")
	ctx, span := tr.Start(ctx, "MarkRecovered",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	item, err := s.loadItem(ctx, s.DB, itemID)
	if err != nil {
		return nil, err
	}
	approved, err := repo.GetApprovedClaim(ctx, s.DB, item.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	isClaimant := approved != nil && approved.ClaimantID == userID
	if item.OwnerID != userID && !isClaimant {
		return nil, ErrNotParticipant
	}
	if approved == nil || item.ModerationStatus != domain.ModerationPendingReturn {
		return nil, ErrItemNotAwaitingReturn
	}

	updates := map[string]any{
		"moderation_status": domain.ModerationRecovered,
		"handover_code":     nil,
	}
	if item.Status == domain.ItemPendingHandover {
		updates["status"] = domain.ItemRecovered
	}
	if err := repo.UpdateItemGuarded(ctx, s.DB, item.ID, item.Version, updates); err != nil {
		if errors.Is(err, repo.ErrStaleVersion) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	updated, err := repo.GetItem(ctx, s.DB, item.ID)
	if err != nil {
		return nil, err
	}
	afterRecovery(ctx, s.Notifier, s.Badges, s.Log, updated, approved.ClaimantID)
	return updated, nil
}

func (s *ClaimService) loadItem(ctx context.Context, db *gorm.DB, id string) (*domain.Item, error) {
	item, err := repo.GetItem(ctx, db, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func rejectedNotice(c domain.Claim, title, tenantID string) notify.Request {
	msg := "Your claim was not approved."
	if title != "" {
		msg = fmt.Sprintf("Your claim for %q was not approved.", title)
	}
	return notify.Request{
		RecipientID: c.ClaimantID,
		TenantID:    tenantID,
		Kind:        domain.KindClaimRejected,
		Message:     msg,
		Link:        "/items/" + c.ItemID,
	}
}

// afterRecovery notifies both parties and evaluates the finder's badges.
func afterRecovery(ctx context.Context, n notify.Notifier, badges BadgeTriggers, log zerolog.Logger, item *domain.Item, claimantID string) {
	link := "/items/" + item.ID
	notify.MultiNotify(ctx, n, log,
		notify.Request{
			RecipientID: item.OwnerID,
			TenantID:    item.TenantID,
			Kind:        domain.KindRecovered,
			Message:     fmt.Sprintf("%q has been returned to its owner. Thank you!", item.Title),
			Link:        link,
		},
		notify.Request{
			RecipientID: claimantID,
			TenantID:    item.TenantID,
			Kind:        domain.KindRecovered,
			Message:     fmt.Sprintf("%q is marked as recovered.", item.Title),
			Link:        link,
		},
	)
	if badges != nil {
		badges.OnItemRecovered(ctx, item.OwnerID, item.TenantID)
	}
}
