package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"campflow/internal/domain"
)

// Store is dumb keyed storage for campaigns, projects and tasks. It
// performs no validation; that is the validator's job, so field rules
// stay unit-testable without a database fixture. There is no delete
// operation: cancellation and archival are state changes, and the
// observed design has no cascade delete.
type Store struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s Store) exec(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return s.DB
}

func (s Store) query(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return s.DB
}

// --- campaigns ---

const campaignCols = `id,name,COALESCE(description,''),COALESCE(start_date,''),COALESCE(end_date,''),state,COALESCE(owner_id,''),budget,estimated_budget,priority,created_at,updated_at`

func scanCampaign(scan func(dest ...any) error) (domain.Campaign, error) {
	var c domain.Campaign
	var est sql.NullFloat64
	var prio sql.NullInt64
	err := scan(&c.ID, &c.Name, &c.Description, &c.StartDate, &c.EndDate, &c.State, &c.OwnerID, &c.Budget, &est, &prio, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if est.Valid {
		v := est.Float64
		c.EstimatedBudget = &v
	}
	if prio.Valid {
		p := int(prio.Int64)
		c.Priority = &p
	}
	return c, nil
}

func (s Store) InsertCampaign(ctx context.Context, tx *sql.Tx, c domain.Campaign) error {
	_, err := s.exec(tx).ExecContext(ctx, `INSERT INTO campaigns(id,name,description,start_date,end_date,state,owner_id,budget,estimated_budget,priority,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Description), nullable(c.StartDate), nullable(c.EndDate), c.State, nullable(c.OwnerID),
		c.Budget, nullableFloatPtr(c.EstimatedBudget), nullableIntPtr(c.Priority), c.CreatedAt, c.UpdatedAt)
	return err
}

func (s Store) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return s.GetCampaignTx(ctx, nil, id)
}

func (s Store) GetCampaignTx(ctx context.Context, tx *sql.Tx, id string) (domain.Campaign, error) {
	row := s.query(tx).QueryRowContext(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE id=?`, id)
	return scanCampaign(row.Scan)
}

func (s Store) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+campaignCols+` FROM campaigns ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- projects ---

const projectCols = `id,campaign_id,name,COALESCE(description,''),COALESCE(start_date,''),COALESCE(end_date,''),state,priority,budget,created_at,updated_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var prio sql.NullInt64
	err := scan(&p.ID, &p.CampaignID, &p.Name, &p.Description, &p.StartDate, &p.EndDate, &p.State, &prio, &p.Budget, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if prio.Valid {
		v := int(prio.Int64)
		p.Priority = &v
	}
	return p, nil
}

func (s Store) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := s.exec(tx).ExecContext(ctx, `INSERT INTO projects(id,campaign_id,name,description,start_date,end_date,state,priority,budget,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.CampaignID, p.Name, nullable(p.Description), nullable(p.StartDate), nullable(p.EndDate), p.State,
		nullableIntPtr(p.Priority), p.Budget, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s Store) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return s.GetProjectTx(ctx, nil, id)
}

func (s Store) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	row := s.query(tx).QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

// ListProjects returns a campaign's projects in creation order.
func (s Store) ListProjects(ctx context.Context, campaignID string) ([]domain.Project, error) {
	return s.ListProjectsTx(ctx, nil, campaignID)
}

func (s Store) ListProjectsTx(ctx context.Context, tx *sql.Tx, campaignID string) ([]domain.Project, error) {
	rows, err := s.query(tx).QueryContext(ctx, `SELECT `+projectCols+` FROM projects WHERE campaign_id=? ORDER BY created_at ASC, id ASC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SumProjectBudgetsTx totals the budgets of a campaign's projects. Run
// inside the same transaction as the campaign write so the roll-up
// sees a consistent snapshot.
func (s Store) SumProjectBudgetsTx(ctx context.Context, tx *sql.Tx, campaignID string) (float64, error) {
	var sum float64
	err := s.query(tx).QueryRowContext(ctx, `SELECT COALESCE(SUM(budget),0) FROM projects WHERE campaign_id=?`, campaignID).Scan(&sum)
	return sum, err
}

// --- tasks ---

const taskCols = `id,project_id,campaign_id,name,COALESCE(description,''),assignee_id,COALESCE(due_date,''),estimated_effort,priority,state,created_at,updated_at,completed_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var effort sql.NullFloat64
	var prio sql.NullInt64
	var completed sql.NullString
	err := scan(&t.ID, &t.ProjectID, &t.CampaignID, &t.Name, &t.Description, &t.AssigneeID, &t.DueDate, &effort, &prio, &t.State, &t.CreatedAt, &t.UpdatedAt, &completed)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if effort.Valid {
		v := effort.Float64
		t.EstimatedEffort = &v
	}
	if prio.Valid {
		v := int(prio.Int64)
		t.Priority = &v
	}
	if completed.Valid {
		t.CompletedAt = &completed.String
	}
	return t, nil
}

func (s Store) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := s.exec(tx).ExecContext(ctx, `INSERT INTO tasks(id,project_id,campaign_id,name,description,assignee_id,due_date,estimated_effort,priority,state,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.CampaignID, t.Name, nullable(t.Description), t.AssigneeID, nullable(t.DueDate),
		nullableFloatPtr(t.EstimatedEffort), nullableIntPtr(t.Priority), t.State, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (s Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return s.GetTaskTx(ctx, nil, id)
}

func (s Store) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := s.query(tx).QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

// ListTasks returns a project's tasks in creation order.
func (s Store) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	return s.ListTasksTx(ctx, nil, projectID)
}

func (s Store) ListTasksTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Task, error) {
	rows, err := s.query(tx).QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- kind-generic operations ---

var tableByKind = map[string]string{
	domain.KindCampaign: "campaigns",
	domain.KindProject:  "projects",
	domain.KindTask:     "tasks",
}

var columnsByKind = map[string]map[string]bool{
	domain.KindCampaign: {
		"name": true, "description": true, "start_date": true, "end_date": true,
		"owner_id": true, "budget": true, "estimated_budget": true, "priority": true,
		"state": true, "updated_at": true,
	},
	domain.KindProject: {
		"name": true, "description": true, "start_date": true, "end_date": true,
		"campaign_id": true, "budget": true, "priority": true,
		"state": true, "updated_at": true,
	},
	domain.KindTask: {
		"name": true, "description": true, "assignee_id": true, "due_date": true,
		"estimated_effort": true, "priority": true,
		"state": true, "updated_at": true, "completed_at": true,
	},
}

// UpdateFields writes a partial column set for one record. Keys must be
// column names from the kind's whitelist; iteration is sorted so the
// generated SQL is deterministic.
func (s Store) UpdateFields(ctx context.Context, tx *sql.Tx, kind, id string, fields map[string]any) error {
	table, ok := tableByKind[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	if len(fields) == 0 {
		return nil
	}
	allowed := columnsByKind[kind]
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !allowed[k] {
			return fmt.Errorf("field %q not updatable on %s", k, kind)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sets []string
	var args []any
	for _, k := range keys {
		sets = append(sets, k+"=?")
		args = append(args, fields[k])
	}
	args = append(args, id)
	res, err := s.exec(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id=?`, table, strings.Join(sets, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetState reads just the lifecycle state of a record.
func (s Store) GetState(ctx context.Context, tx *sql.Tx, kind, id string) (string, error) {
	table, ok := tableByKind[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	var state string
	err := s.query(tx).QueryRowContext(ctx, fmt.Sprintf(`SELECT state FROM %s WHERE id=?`, table), id).Scan(&state)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return state, err
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
