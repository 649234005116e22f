package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
)

func newNotifyDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notify_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakePush struct {
	mu   sync.Mutex
	got  [][]PushMessage
	dead []string
	err  error
}

func (f *fakePush) Send(_ context.Context, msgs []PushMessage) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msgs)
	return f.dead, f.err
}

func TestDispatcher_PersistsAndPushes(t *testing.T) {
	db := newNotifyDB(t)
	ctx := context.Background()
	_ = repo.SavePushToken(ctx, db, "u1", "tok-1")
	_ = repo.SavePushToken(ctx, db, "u1", "tok-2")

	push := &fakePush{}
	d := NewDispatcher(db, push, zerolog.Nop())

	ok, err := d.Notify(ctx, Request{RecipientID: "u1", TenantID: "t1", Message: "Claim approved", Link: "/messages/c1", Kind: domain.KindClaimApproved})
	if err != nil || !ok {
		t.Fatalf("Notify: %v %v", ok, err)
	}

	var rows []domain.Notification
	db.Where("recipient_id = ?", "u1").Find(&rows)
	if len(rows) != 1 || rows[0].Kind != domain.KindClaimApproved || rows[0].Link != "/messages/c1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	if len(push.got) != 1 || len(push.got[0]) != 2 {
		t.Fatalf("expected one batch of two pushes, got %+v", push.got)
	}
	m := push.got[0][0]
	if m.ChannelID != "claims" || m.Title != "Claim approved" || m.Data["type"] != "claim_approved" || m.Data["link"] != "/messages/c1" {
		t.Fatalf("unexpected push payload: %+v", m)
	}
}

func TestDispatcher_DedupeSuppressesSecondNotification(t *testing.T) {
	db := newNotifyDB(t)
	ctx := context.Background()
	_ = repo.SavePushToken(ctx, db, "u1", "tok-1")
	push := &fakePush{}
	d := NewDispatcher(db, push, zerolog.Nop())

	req := Request{RecipientID: "u1", Message: "match", Kind: domain.KindMatch, DedupeKey: "u1|i1|match"}
	if ok, err := d.Notify(ctx, req); err != nil || !ok {
		t.Fatalf("first: %v %v", ok, err)
	}
	if ok, err := d.Notify(ctx, req); err != nil || ok {
		t.Fatalf("second should be suppressed: %v %v", ok, err)
	}
	var n int64
	db.Model(&domain.Notification{}).Count(&n)
	if n != 1 || len(push.got) != 1 {
		t.Fatalf("expected 1 row and 1 push batch, got %d rows, %d batches", n, len(push.got))
	}
}

func TestDispatcher_PushFailureIsNotAnError_AndDeadTokensDropped(t *testing.T) {
	db := newNotifyDB(t)
	ctx := context.Background()
	_ = repo.SavePushToken(ctx, db, "u1", "dead-token")
	push := &fakePush{dead: []string{"dead-token"}, err: errors.New("1 of 1 tickets failed")}
	d := NewDispatcher(db, push, zerolog.Nop())

	ok, err := d.Notify(ctx, Request{RecipientID: "u1", Message: "hi", Kind: "unknown-kind"})
	if err != nil || !ok {
		t.Fatalf("push failure must not fail Notify: %v %v", ok, err)
	}
	toks, _ := repo.ListPushTokens(ctx, db, "u1")
	if len(toks) != 0 {
		t.Fatalf("dead token should be removed, got %v", toks)
	}
	var row domain.Notification
	db.First(&row)
	if row.Kind != domain.KindGeneral {
		t.Fatalf("unknown kinds should persist as general, got %q", row.Kind)
	}
}

func TestDispatcher_Errors(t *testing.T) {
	db := newNotifyDB(t)
	d := NewDispatcher(db, nil, zerolog.Nop())
	if _, err := d.Notify(context.Background(), Request{Message: "x"}); err == nil {
		t.Fatalf("expected error for empty recipient")
	}

	bare, _ := gorm.Open(sqlite.Open("file:notify_bare_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	d2 := NewDispatcher(bare, nil, zerolog.Nop())
	if _, err := d2.Notify(context.Background(), Request{RecipientID: "u1", Message: "x"}); err == nil {
		t.Fatalf("expected persistence error without schema")
	}
}

type recordingNotifier struct {
	reqs []Request
	fail bool
}

func (r *recordingNotifier) Notify(_ context.Context, req Request) (bool, error) {
	r.reqs = append(r.reqs, req)
	if r.fail {
		return false, errors.New("down")
	}
	return true, nil
}

func TestMultiNotify_SwallowsErrors(t *testing.T) {
	rn := &recordingNotifier{fail: true}
	MultiNotify(context.Background(), rn, zerolog.Nop(), Request{RecipientID: "a"}, Request{RecipientID: "b"})
	if len(rn.reqs) != 2 {
		t.Fatalf("every request should be attempted, got %d", len(rn.reqs))
	}
	MultiNotify(context.Background(), nil, zerolog.Nop(), Request{RecipientID: "a"})
}

func TestExpoSender(t *testing.T) {
	var got []PushMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"a"},{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}]}`))
	}))
	defer srv.Close()

	s := NewExpoSender(srv.URL, 0)
	dead, err := s.Send(context.Background(), []PushMessage{{To: "t1", Body: "a"}, {To: "t2", Body: "b"}})
	if err == nil {
		t.Fatalf("expected error reporting the failed ticket")
	}
	if len(dead) != 1 || dead[0] != "t2" {
		t.Fatalf("expected t2 reported dead, got %v", dead)
	}
	if len(got) != 2 || got[1].To != "t2" {
		t.Fatalf("server saw %+v", got)
	}

	if dead, err := s.Send(context.Background(), nil); err != nil || dead != nil {
		t.Fatalf("empty batch should be a no-op")
	}
}

func TestExpoSender_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewExpoSender(srv.URL, 0).Send(context.Background(), []PushMessage{{To: "t", Body: "b"}}); err == nil {
		t.Fatalf("expected error on 503")
	}
	if NewExpoSender("", 0).Endpoint != DefaultExpoEndpoint {
		t.Fatalf("empty endpoint should default to Expo")
	}
}
