package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"campflow/internal/db"
	"campflow/internal/domain"
	"campflow/internal/events"
	"campflow/internal/migrate"
	"campflow/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.Store{DB: conn}
}

func ts(sec int) string {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC).Format(time.RFC3339)
}

func TestCampaignRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	est := 1500.0
	prio := 2
	in := domain.Campaign{
		ID:              "c1",
		Name:            "Spring Launch",
		Description:     "all channels",
		StartDate:       ts(0),
		EndDate:         ts(30),
		State:           domain.StateDraft,
		OwnerID:         "alice",
		Budget:          1000,
		EstimatedBudget: &est,
		Priority:        &prio,
		CreatedAt:       ts(0),
		UpdatedAt:       ts(0),
	}
	if err := s.InsertCampaign(ctx, nil, in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetCampaign(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != in.Name || got.OwnerID != in.OwnerID || got.Budget != in.Budget {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.EstimatedBudget == nil || *got.EstimatedBudget != est {
		t.Fatalf("estimated budget lost: %+v", got.EstimatedBudget)
	}
	if got.Priority == nil || *got.Priority != prio {
		t.Fatalf("priority lost: %+v", got.Priority)
	}
}

func TestNullableFieldsStayNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	in := domain.Campaign{ID: "c1", Name: "Spring Launch", State: domain.StateDraft, CreatedAt: ts(0), UpdatedAt: ts(0)}
	if err := s.InsertCampaign(ctx, nil, in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetCampaign(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EstimatedBudget != nil || got.Priority != nil {
		t.Fatalf("optional fields not nil: %+v", got)
	}
	if got.Description != "" || got.StartDate != "" {
		t.Fatalf("empty strings not preserved: %+v", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.GetCampaign(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("campaign: got %v", err)
	}
	if _, err := s.GetProject(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("project: got %v", err)
	}
	if _, err := s.GetTask(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("task: got %v", err)
	}
	if _, err := s.GetState(ctx, nil, domain.KindCampaign, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("state: got %v", err)
	}
}

func TestChildrenOrderedByCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	camp := domain.Campaign{ID: "c1", Name: "Spring Launch", State: domain.StateDraft, CreatedAt: ts(0), UpdatedAt: ts(0)}
	if err := s.InsertCampaign(ctx, nil, camp); err != nil {
		t.Fatalf("insert campaign: %v", err)
	}
	for i := 3; i >= 1; i-- {
		p := domain.Project{
			ID:         fmt.Sprintf("p%d", i),
			CampaignID: "c1",
			Name:       fmt.Sprintf("wave %d", i),
			State:      domain.StateDraft,
			CreatedAt:  ts(10 - i),
			UpdatedAt:  ts(10 - i),
		}
		if err := s.InsertProject(ctx, nil, p); err != nil {
			t.Fatalf("insert project: %v", err)
		}
	}
	projects, err := s.ListProjects(ctx, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 3 {
		t.Fatalf("got %d projects", len(projects))
	}
	// p3 has the earliest created_at.
	want := []string{"p3", "p2", "p1"}
	for i, p := range projects {
		if p.ID != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, p.ID, want[i])
		}
	}
}

func TestUpdateFieldsWhitelist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	camp := domain.Campaign{ID: "c1", Name: "Spring Launch", State: domain.StateDraft, CreatedAt: ts(0), UpdatedAt: ts(0)}
	if err := s.InsertCampaign(ctx, nil, camp); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateFields(ctx, nil, domain.KindCampaign, "c1", map[string]any{"id": "c2"}); err == nil {
		t.Fatalf("id column accepted")
	}
	if err := s.UpdateFields(ctx, nil, domain.KindCampaign, "c1", map[string]any{"name": "Renamed"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.GetCampaign(ctx, "c1")
	if got.Name != "Renamed" {
		t.Fatalf("name = %q", got.Name)
	}
	if err := s.UpdateFields(ctx, nil, domain.KindCampaign, "missing", map[string]any{"name": "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing id: got %v", err)
	}
	if err := s.UpdateFields(ctx, nil, "widget", "c1", map[string]any{"name": "x"}); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}

func TestSumProjectBudgets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.InsertCampaign(ctx, nil, domain.Campaign{ID: "c1", Name: "Spring Launch", State: domain.StateDraft, CreatedAt: ts(0), UpdatedAt: ts(0)}); err != nil {
		t.Fatalf("insert campaign: %v", err)
	}
	for i, budget := range []float64{100, 200, 300} {
		p := domain.Project{ID: fmt.Sprintf("p%d", i), CampaignID: "c1", Name: "wave", State: domain.StateDraft, Budget: budget, CreatedAt: ts(i), UpdatedAt: ts(i)}
		if err := s.InsertProject(ctx, nil, p); err != nil {
			t.Fatalf("insert project: %v", err)
		}
	}
	sum, err := s.SumProjectBudgetsTx(ctx, nil, "c1")
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 600 {
		t.Fatalf("sum = %v, want 600", sum)
	}
	sum, err = s.SumProjectBudgetsTx(ctx, nil, "empty")
	if err != nil {
		t.Fatalf("sum empty: %v", err)
	}
	if sum != 0 {
		t.Fatalf("empty sum = %v, want 0", sum)
	}
}

func appendAudit(t *testing.T, s store.Store, action, kind, id, actor string) {
	t.Helper()
	w := events.Writer{DB: s.DB, Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }}
	tx, err := s.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := w.Append(context.Background(), tx, action, kind, id, actor, events.Changes{"state": "draft"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestAuditFiltersAndCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	appendAudit(t, s, events.ActionCreated, domain.KindCampaign, "c1", "alice")
	appendAudit(t, s, events.ActionStateChanged, domain.KindCampaign, "c1", "alice")
	appendAudit(t, s, events.ActionCreated, domain.KindProject, "p1", "bob")
	appendAudit(t, s, events.ActionUpdated, domain.KindProject, "p1", "alice")

	entries, err := s.ListAudit(ctx, store.AuditFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries", len(entries))
	}
	// Newest first.
	if entries[0].Action != events.ActionUpdated {
		t.Fatalf("first entry = %s", entries[0].Action)
	}

	entries, err = s.ListAudit(ctx, store.AuditFilters{EntityKind: domain.KindProject, ActorID: "bob"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(entries) != 1 || entries[0].EntityID != "p1" {
		t.Fatalf("filter mismatch: %+v", entries)
	}

	// Cursor pages strictly backwards.
	page, err := s.ListAudit(ctx, store.AuditFilters{Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page 1 size = %d", len(page))
	}
	rest, err := s.ListAudit(ctx, store.AuditFilters{Cursor: page[1].ID})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("page 2 size = %d", len(rest))
	}
	if rest[0].ID >= page[1].ID {
		t.Fatalf("cursor did not advance: %d >= %d", rest[0].ID, page[1].ID)
	}
}

func TestAuditAfterTailsForward(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	appendAudit(t, s, events.ActionCreated, domain.KindCampaign, "c1", "alice")
	latest, err := s.LatestAuditID(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	appendAudit(t, s, events.ActionStateChanged, domain.KindCampaign, "c1", "alice")
	appendAudit(t, s, events.ActionStateChanged, domain.KindCampaign, "c1", "alice")

	entries, err := s.AuditAfter(ctx, 10, latest)
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries after cursor", len(entries))
	}
	if entries[0].ID >= entries[1].ID {
		t.Fatalf("not ascending: %d, %d", entries[0].ID, entries[1].ID)
	}
}
