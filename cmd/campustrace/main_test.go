package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func useTempDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func TestMigrateAndSeedBadges(t *testing.T) {
	path := useTempDB(t)

	_, err := run(t, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	out, err := run(t, "seed-badges")
	if err != nil {
		t.Fatalf("seed-badges: %v", err)
	}
	if !strings.Contains(out, "4 badges in catalog") {
		t.Fatalf("output = %q", out)
	}

	db, err := repo.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var n int64
	db.Model(&domain.Badge{}).Count(&n)
	if n != int64(len(repo.BadgeCatalog)) {
		t.Fatalf("badges = %d", n)
	}
}

func TestRescan(t *testing.T) {
	path := useTempDB(t)
	if _, err := run(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := repo.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	lost := &domain.Item{TenantID: "c1", OwnerID: "owner", Status: domain.ItemLost, ModerationStatus: domain.ModerationApproved,
		Category: "Keys", Title: "Car keys", TextEmbedding: domain.Embedding{1, 0}}
	found := &domain.Item{TenantID: "c1", OwnerID: "finder", Status: domain.ItemFound, ModerationStatus: domain.ModerationApproved,
		Category: "Keys", Title: "Keys on a red lanyard", TextEmbedding: domain.Embedding{1, 0}}
	for _, it := range []*domain.Item{lost, found} {
		if err := repo.CreateItem(context.Background(), db, it); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	out, err := run(t, "rescan", found.ID)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if !strings.Contains(out, "notified 1 owner(s)") {
		t.Fatalf("output = %q", out)
	}

	// The match notification is deduplicated on a second scan.
	out, err = run(t, "rescan", found.ID)
	if err != nil || !strings.Contains(out, "notified 0 owner(s)") {
		t.Fatalf("second rescan = %q, %v", out, err)
	}

	if _, err := run(t, "rescan"); err == nil {
		t.Fatal("rescan without an id must fail")
	}
}

func TestBadConfigFails(t *testing.T) {
	useTempDB(t)
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := run(t, "migrate"); err == nil {
		t.Fatal("expected config error")
	}
}
