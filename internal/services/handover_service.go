// Package services – HandoverService
//
// The in-person handover confirms a return with a short code:
//
//  1. the approved claimant starts the handover and receives a 4-digit code;
//  2. the item moves to PendingHandover;
//  3. the finder enters the code the claimant shows them;
//  4. on a match the item is Recovered and the code is cleared.
//
// A wrong code changes nothing.
package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/notify"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
)

const (
	handoverCodeDigits  = 4
	maxThankYouRunes    = 1000
	handoverCodeModulus = 10000
)

// HandoverService implements the code-confirmed handover and thank-you notes.
type HandoverService struct {
	DB       *gorm.DB
	Notifier notify.Notifier
	Badges   BadgeTriggers // optional
	Log      zerolog.Logger

	// NewCode overrides code generation in tests.
	NewCode func() (string, error)
}

// Start begins the handover for itemID and returns the code the claimant
// must show the finder. Starting again replaces the code.
func (s *HandoverService) Start(ctx context.Context, claimantID, itemID string) (string, error) {
	tr := otel.Tracer("services/HandoverService")
	ctx, span := tr.Start(ctx, "Start",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("claimant.id", claimantID),
		),
	)
	defer span.End()

	item, claim, err := s.itemAndApprovedClaim(ctx, itemID)
	if err != nil {
		return "", err
	}
	if claim == nil || claim.ClaimantID != claimantID {
		return "", ErrNotClaimant
	}
	if item.ModerationStatus != domain.ModerationPendingReturn ||
		(item.Status != domain.ItemFound && item.Status != domain.ItemPendingHandover) {
		return "", ErrItemNotAwaitingReturn
	}

	gen := s.NewCode
	if gen == nil {
		gen = randomHandoverCode
	}
	code, err := gen()
	if err != nil {
		return "", fmt.Errorf("generate handover code: %w", err)
	}

	err = repo.UpdateItemGuarded(ctx, s.DB, item.ID, item.Version, map[string]any{
		"status":        domain.ItemPendingHandover,
		"handover_code": code,
	})
	if err != nil {
		if errors.Is(err, repo.ErrStaleVersion) {
			return "", ErrConcurrentUpdate
		}
		return "", err
	}

	notify.MultiNotify(ctx, s.Notifier, s.Log, notify.Request{
		RecipientID: item.OwnerID,
		TenantID:    item.TenantID,
		Kind:        domain.KindHandover,
		Message:     fmt.Sprintf("The owner of %q is ready for the handover. Ask them for the code.", item.Title),
		Link:        "/items/" + item.ID,
	})
	return code, nil
}

// Complete finishes the handover when code matches the stored one.
func (s *HandoverService) Complete(ctx context.Context, finderID, itemID, code string) (*domain.Item, error) {
	tr := otel.Tracer("services/HandoverService")
	ctx, span := tr.Start(ctx, "Complete",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("finder.id", finderID),
		),
	)
	defer span.End()

	item, claim, err := s.itemAndApprovedClaim(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != finderID {
		return nil, ErrNotFinder
	}
	if item.Status != domain.ItemPendingHandover || item.HandoverCode == nil || claim == nil {
		return nil, ErrHandoverNotStarted
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(*item.HandoverCode)) != 1 {
		return nil, ErrInvalidHandoverCode
	}

	err = repo.UpdateItemGuarded(ctx, s.DB, item.ID, item.Version, map[string]any{
		"status":            domain.ItemRecovered,
		"moderation_status": domain.ModerationRecovered,
		"handover_code":     nil,
	})
	if err != nil {
		if errors.Is(err, repo.ErrStaleVersion) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	updated, err := repo.GetItem(ctx, s.DB, item.ID)
	if err != nil {
		return nil, err
	}
	afterRecovery(ctx, s.Notifier, s.Badges, s.Log, updated, claim.ClaimantID)
	return updated, nil
}

// ThankYou lets the approved claimant of a recovered item leave one note
// for the finder.
func (s *HandoverService) ThankYou(ctx context.Context, claimantID, itemID, message string) (*domain.ThankYouNote, error) {
	tr := otel.Tracer("services/HandoverService")
	ctx, span := tr.Start(ctx, "ThankYou", trace.WithAttributes(attribute.String("item.id", itemID)))
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > maxThankYouRunes {
		return nil, ErrMessageTooLong
	}

	item, claim, err := s.itemAndApprovedClaim(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if claim == nil || claim.ClaimantID != claimantID {
		return nil, ErrNotClaimant
	}
	if item.ModerationStatus != domain.ModerationRecovered {
		return nil, ErrNotRecovered
	}

	note, err := repo.CreateThankYouNote(ctx, s.DB, item.ID, claimantID, item.OwnerID, message)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateThankYou
		}
		return nil, err
	}

	notify.MultiNotify(ctx, s.Notifier, s.Log, notify.Request{
		RecipientID: item.OwnerID,
		TenantID:    item.TenantID,
		Kind:        domain.KindGeneral,
		Message:     fmt.Sprintf("You received a thank-you note for returning %q.", item.Title),
		Link:        "/profile/thank-you-notes",
	})
	return note, nil
}

// ListThankYouNotes returns the notes addressed to userID.
func (s *HandoverService) ListThankYouNotes(ctx context.Context, userID string) ([]domain.ThankYouNote, error) {
	return repo.ListThankYouNotes(ctx, s.DB, userID)
}

func (s *HandoverService) itemAndApprovedClaim(ctx context.Context, itemID string) (*domain.Item, *domain.Claim, error) {
	item, err := repo.GetItem(ctx, s.DB, itemID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrItemNotFound
		}
		return nil, nil, err
	}
	claim, err := repo.GetApprovedClaim(ctx, s.DB, item.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return item, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return item, claim, nil
}

func randomHandoverCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(handoverCodeModulus))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", handoverCodeDigits, n.Int64()), nil
}
