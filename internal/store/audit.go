package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"campflow/internal/domain"
)

type AuditFilters struct {
	Action     string
	EntityKind string
	EntityID   string
	ActorID    string
	Limit      int
	Cursor     int64
}

// ListAudit returns audit entries newest first, for reporting reads.
func (s Store) ListAudit(ctx context.Context, f AuditFilters) ([]domain.AuditEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,action,entity_kind,entity_id,actor_id,changes_json FROM audit_log %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return s.scanAudit(ctx, query, args...)
}

// AuditAfter returns entries with IDs greater than the cursor in
// ascending order; the webhook dispatcher tails the log with it.
func (s Store) AuditAfter(ctx context.Context, limit int, cursor int64) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.scanAudit(ctx, `SELECT id,ts,action,entity_kind,entity_id,actor_id,changes_json FROM audit_log WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestAuditID returns the most recent audit entry ID.
func (s Store) LatestAuditID(ctx context.Context) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM audit_log`).Scan(&id)
	return id, err
}

// CountAudit counts entries for one entity, optionally by action.
func (s Store) CountAudit(ctx context.Context, entityKind, entityID, action string) (int, error) {
	clauses := []string{"entity_kind=?", "entity_id=?"}
	args := []any{entityKind, entityID}
	if action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, action)
	}
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM audit_log WHERE `+strings.Join(clauses, " AND "), args...).Scan(&n)
	return n, err
}

func (s Store) scanAudit(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var changes sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Action, &e.EntityKind, &e.EntityID, &e.ActorID, &changes); err != nil {
			return nil, err
		}
		if changes.Valid {
			e.Changes = changes.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
