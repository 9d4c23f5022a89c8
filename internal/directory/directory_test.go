package directory_test

import (
	"context"
	"errors"
	"testing"

	"campflow/internal/db"
	"campflow/internal/directory"
	"campflow/internal/domain"
	"campflow/internal/migrate"
)

func newTestDirectory(t *testing.T) directory.SQL {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return directory.SQL{DB: conn}
}

func TestEnsureUserUpsert(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	if _, err := d.EnsureUser(ctx, domain.User{ID: "alice", Name: "Alice", Active: true}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	ok, err := d.UserExistsAndActive(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("alice not active: ok=%v err=%v", ok, err)
	}

	// Second ensure updates in place.
	if _, err := d.EnsureUser(ctx, domain.User{ID: "alice", Name: "Alice B", Active: false}); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	u, err := d.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Name != "Alice B" || u.Active {
		t.Fatalf("upsert mismatch: %+v", u)
	}

	if _, err := d.EnsureUser(ctx, domain.User{}); err == nil {
		t.Fatalf("empty id accepted")
	}
}

func TestUnknownUser(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	ok, err := d.UserExistsAndActive(ctx, "ghost")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok {
		t.Fatalf("ghost reported active")
	}
	if _, err := d.GetUser(ctx, "ghost"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("get ghost: %v", err)
	}
	if err := d.SetActive(ctx, "ghost", true); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("set active ghost: %v", err)
	}
}

func TestSegments(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	if _, err := d.EnsureUser(ctx, domain.User{ID: "alice", Active: true}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, seg := range []string{"emea", "apac", "emea"} {
		if err := d.AddSegment(ctx, "alice", seg); err != nil {
			t.Fatalf("add segment %s: %v", seg, err)
		}
	}
	segments, err := d.UserSegments(ctx, "alice")
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(segments) != 2 || segments[0] != "apac" || segments[1] != "emea" {
		t.Fatalf("segments = %v", segments)
	}
}
