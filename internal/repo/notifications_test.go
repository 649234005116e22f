package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
)

func TestCreateNotification_DedupeKey(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	key := "u1|item-1|match"

	ok, err := CreateNotification(ctx, db, &domain.Notification{RecipientID: "u1", Message: "m", Kind: domain.KindMatch, DedupeKey: &key})
	if err != nil || !ok {
		t.Fatalf("first insert: %v %v", ok, err)
	}
	ok, err = CreateNotification(ctx, db, &domain.Notification{RecipientID: "u1", Message: "m", Kind: domain.KindMatch, DedupeKey: &key})
	if err != nil || ok {
		t.Fatalf("duplicate insert should be a silent no-op: %v %v", ok, err)
	}

	// no key: never deduplicated, kind defaults to general
	for i := 0; i < 2; i++ {
		n := &domain.Notification{RecipientID: "u1", Message: "hello"}
		if ok, err := CreateNotification(ctx, db, n); err != nil || !ok {
			t.Fatalf("keyless insert #%d: %v %v", i, ok, err)
		}
		if n.Kind != domain.KindGeneral {
			t.Fatalf("expected general kind, got %q", n.Kind)
		}
	}

	total, unread, err := CountNotifications(ctx, db, "u1")
	if err != nil || total != 3 || unread != 3 {
		t.Fatalf("CountNotifications = %d/%d, %v", total, unread, err)
	}
}

func TestNotifications_ListMarkAndStats(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	for i, r := range []string{"u1", "u1", "u2", "u1"} {
		n := &domain.Notification{RecipientID: r, Message: "m", CreatedAt: at(i)}
		if _, err := CreateNotification(ctx, db, n); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	page, err := ListNotificationsPage(ctx, db, "u1", 0, 2)
	if err != nil || len(page) != 2 || !page[0].CreatedAt.Equal(at(3)) {
		t.Fatalf("ListNotificationsPage: %+v %v", page, err)
	}

	if err := MarkNotificationRead(ctx, db, page[0].ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("marking someone else's notification should be ErrNotFound, got %v", err)
	}
	if err := MarkNotificationRead(ctx, db, page[0].ID, "u1"); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}

	cnt, unread, latest, err := NotificationsStats(ctx, db, "u1")
	if err != nil || cnt != 3 || unread != 2 || latest == nil || !latest.Equal(at(3)) {
		t.Fatalf("NotificationsStats = %d %d %v %v", cnt, unread, latest, err)
	}

	n, err := MarkAllNotificationsRead(ctx, db, "u1")
	if err != nil || n != 2 {
		t.Fatalf("MarkAllNotificationsRead = %d, %v", n, err)
	}
	_, unread, _, _ = NotificationsStats(ctx, db, "u1")
	if unread != 0 {
		t.Fatalf("expected no unread left, got %d", unread)
	}

	cnt, _, latest, err = NotificationsStats(ctx, db, "nobody")
	if err != nil || cnt != 0 || latest != nil {
		t.Fatalf("empty stats: %d %v %v", cnt, latest, err)
	}
}

func TestNotificationsStats_Error_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if _, _, _, err := NotificationsStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error when table is missing")
	}
}

func TestBadges_InsertIsIdempotent(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	if err := SeedBadges(ctx, db); err != nil {
		t.Fatalf("SeedBadges: %v", err)
	}
	b, _ := GetBadgeByName(ctx, db, domain.BadgeFirstPost)

	has, err := HasBadge(ctx, db, "u1", b.ID)
	if err != nil || has {
		t.Fatalf("HasBadge before = %v, %v", has, err)
	}
	ok, err := InsertUserBadge(ctx, db, "u1", b.ID, "t1")
	if err != nil || !ok {
		t.Fatalf("InsertUserBadge: %v %v", ok, err)
	}
	ok, err = InsertUserBadge(ctx, db, "u1", b.ID, "t1")
	if err != nil || ok {
		t.Fatalf("repeat InsertUserBadge should be a no-op: %v %v", ok, err)
	}

	var rows int64
	db.Model(&domain.UserBadge{}).Where("user_id = ?", "u1").Count(&rows)
	if rows != 1 {
		t.Fatalf("expected exactly one user_badges row, got %d", rows)
	}
	var catalog int64
	db.Model(&domain.Badge{}).Count(&catalog)
	if catalog != int64(len(BadgeCatalog)) {
		t.Fatalf("inserting a user badge must not touch the catalog, got %d rows", catalog)
	}

	list, err := ListUserBadges(ctx, db, "u1")
	if err != nil || len(list) != 1 || list[0].Badge.Name != domain.BadgeFirstPost {
		t.Fatalf("ListUserBadges: %+v %v", list, err)
	}
	if _, err := GetBadgeByName(ctx, db, "Nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown badge, got %v", err)
	}
}

func TestThankYouNotes(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	if _, err := CreateThankYouNote(ctx, db, "i1", "claimant", "finder", "thanks!"); err != nil {
		t.Fatalf("CreateThankYouNote: %v", err)
	}
	if _, err := CreateThankYouNote(ctx, db, "i1", "claimant", "finder", "again"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	notes, err := ListThankYouNotes(ctx, db, "finder")
	if err != nil || len(notes) != 1 || notes[0].Message != "thanks!" {
		t.Fatalf("ListThankYouNotes: %+v %v", notes, err)
	}
}

func TestPushTokens_SaveMoveAndDelete(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	if err := SavePushToken(ctx, db, "u1", "ExponentPushToken[a]"); err != nil {
		t.Fatalf("SavePushToken: %v", err)
	}
	if err := SavePushToken(ctx, db, "u1", "ExponentPushToken[a]"); err != nil {
		t.Fatalf("re-saving a token must not fail: %v", err)
	}
	toks, _ := ListPushTokens(ctx, db, "u1")
	if len(toks) != 1 {
		t.Fatalf("expected one token, got %v", toks)
	}

	// same device signs in as someone else
	if err := SavePushToken(ctx, db, "u2", "ExponentPushToken[a]"); err != nil {
		t.Fatalf("SavePushToken move: %v", err)
	}
	toks, _ = ListPushTokens(ctx, db, "u1")
	if len(toks) != 0 {
		t.Fatalf("token should have moved away from u1, got %v", toks)
	}
	toks, _ = ListPushTokens(ctx, db, "u2")
	if len(toks) != 1 {
		t.Fatalf("token should belong to u2, got %v", toks)
	}

	if err := DeletePushToken(ctx, db, "ExponentPushToken[a]"); err != nil {
		t.Fatalf("DeletePushToken: %v", err)
	}
	toks, _ = ListPushTokens(ctx, db, "u2")
	if len(toks) != 0 {
		t.Fatalf("expected no tokens after delete, got %v", toks)
	}
}

func TestIdempotency_GetCreateAndPurge(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()

	if rec, err := GetIdempotency(ctx, db, "u1", "  ", "k1", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for empty scope, got (%v, %v)", rec, err)
	}

	rec, err := CreateIdempotency(ctx, db, "u1", "claims:i1", "k1", "c-1", 201, time.Hour)
	if err != nil || rec.ResourceID != "c-1" || rec.Status != 201 {
		t.Fatalf("CreateIdempotency: %+v %v", rec, err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "claims:i1", "k1", "c-2", 201, time.Hour); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// same key, different scope is independent
	if _, err := CreateIdempotency(ctx, db, "u1", "items", "k1", "i-9", 201, time.Hour); err != nil {
		t.Fatalf("different scope should insert: %v", err)
	}

	got, err := GetIdempotency(ctx, db, "u1", "claims:i1", "k1", now)
	if err != nil || got.ResourceID != "c-1" {
		t.Fatalf("GetIdempotency: %+v %v", got, err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "claims:i1", "k1", now.Add(2*time.Hour)); err != ErrNotFound {
		t.Fatalf("expired record should be ErrNotFound, got %v", err)
	}

	n, err := PurgeExpiredIdempotency(ctx, db, now.Add(2*time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("PurgeExpiredIdempotency = %d, %v", n, err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	_, err := CreateIdempotency(context.Background(), db, "u", "s", "k", "r", 200, time.Minute)
	if err == nil || err == ErrDuplicate {
		t.Fatalf("expected non-duplicate error when table is missing, got %v", err)
	}
}
