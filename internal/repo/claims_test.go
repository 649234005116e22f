package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

func TestClaims_CreateGetAndList(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	it := seedItem(t, db, domain.Item{OwnerID: "finder", Status: domain.ItemFound})

	c, err := CreateClaim(ctx, db, it.ID, "u2", "finder", "it has a sticker")
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	if c.Status != domain.ClaimPending || c.ID == "" {
		t.Fatalf("unexpected claim: %+v", c)
	}

	got, err := GetClaim(ctx, db, c.ID)
	if err != nil || got.VerificationMessage != "it has a sticker" {
		t.Fatalf("GetClaim: %+v %v", got, err)
	}
	if _, err := GetClaim(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := ListClaimsByItem(ctx, db, it.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListClaimsByItem: %v %v", list, err)
	}

	has, err := HasPendingClaim(ctx, db, it.ID, "u2")
	if err != nil || !has {
		t.Fatalf("HasPendingClaim = %v, %v", has, err)
	}
	has, _ = HasPendingClaim(ctx, db, it.ID, "u3")
	if has {
		t.Fatalf("u3 has no claim")
	}
}

func TestCreateClaim_UnknownItem_ViolatesFK(t *testing.T) {
	db := newRepoDB(t, true)
	if _, err := CreateClaim(context.Background(), db, "missing", "u2", "finder", ""); err == nil {
		t.Fatalf("expected FK violation for unknown item")
	}
}

func TestTransitionClaim_GuardsOnFromStatus(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	it := seedItem(t, db, domain.Item{OwnerID: "finder", Status: domain.ItemFound})
	c, _ := CreateClaim(ctx, db, it.ID, "u2", "finder", "")

	ok, err := TransitionClaim(ctx, db, c.ID, domain.ClaimPending, domain.ClaimRejected)
	if err != nil || !ok {
		t.Fatalf("first transition: %v %v", ok, err)
	}
	ok, err = TransitionClaim(ctx, db, c.ID, domain.ClaimPending, domain.ClaimApproved)
	if err != nil || ok {
		t.Fatalf("second transition should not match: %v %v", ok, err)
	}
}

func TestRejectOtherPending_CascadeAndApprovedLookup(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	it := seedItem(t, db, domain.Item{OwnerID: "finder", Status: domain.ItemFound})
	other := seedItem(t, db, domain.Item{OwnerID: "finder", Status: domain.ItemFound})

	keep, _ := CreateClaim(ctx, db, it.ID, "a", "finder", "")
	c2, _ := CreateClaim(ctx, db, it.ID, "b", "finder", "")
	c3, _ := CreateClaim(ctx, db, it.ID, "c", "finder", "")
	untouched, _ := CreateClaim(ctx, db, other.ID, "d", "finder", "")
	// already rejected claims stay out of the result
	_, _ = TransitionClaim(ctx, db, c3.ID, domain.ClaimPending, domain.ClaimRejected)

	if _, err := TransitionClaim(ctx, db, keep.ID, domain.ClaimPending, domain.ClaimApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	rejected, err := RejectOtherPending(ctx, db, it.ID, keep.ID)
	if err != nil {
		t.Fatalf("RejectOtherPending: %v", err)
	}
	if len(rejected) != 1 || rejected[0].ID != c2.ID || rejected[0].Status != domain.ClaimRejected {
		t.Fatalf("unexpected rejected set: %+v", rejected)
	}

	got, _ := GetClaim(ctx, db, c2.ID)
	if got.Status != domain.ClaimRejected {
		t.Fatalf("c2 should be rejected, got %s", got.Status)
	}
	got, _ = GetClaim(ctx, db, untouched.ID)
	if got.Status != domain.ClaimPending {
		t.Fatalf("claims on other items must stay pending")
	}

	appr, err := GetApprovedClaim(ctx, db, it.ID)
	if err != nil || appr.ID != keep.ID {
		t.Fatalf("GetApprovedClaim: %+v %v", appr, err)
	}
	if _, err := GetApprovedClaim(ctx, db, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for item without approval, got %v", err)
	}

	// nothing left to reject
	rejected, err = RejectOtherPending(ctx, db, it.ID, keep.ID)
	if err != nil || len(rejected) != 0 {
		t.Fatalf("second cascade should be empty: %v %v", rejected, err)
	}
}
