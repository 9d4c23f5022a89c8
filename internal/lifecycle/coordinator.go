package lifecycle

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"campflow/internal/directory"
	"campflow/internal/domain"
	"campflow/internal/events"
	"campflow/internal/store"
	"campflow/internal/validate"
)

// Coordinator owns the create/update/transition flows. Field and
// reference checks run before any write; every committed change lands
// in the audit log inside the same transaction as the write, so no
// partial success is ever observable.
type Coordinator struct {
	DB        *sql.DB
	Store     store.Store
	Audit     events.Writer
	Directory directory.Directory
	Checker   validate.Checker
	Now       func() time.Time
}

func New(db *sql.DB, dir directory.Directory) Coordinator {
	s := store.Store{DB: db}
	return Coordinator{
		DB:        db,
		Store:     s,
		Audit:     events.Writer{DB: db},
		Directory: dir,
		Checker:   validate.Checker{Store: s, Directory: dir},
		Now:       time.Now,
	}
}

func (c Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Coordinator) nowString() string {
	return c.now().UTC().Format(time.RFC3339)
}

// CreateResult is the uniform envelope every create returns. On
// failure nothing was stored and Errors lists every violated
// constraint at once.
type CreateResult struct {
	Success          bool             `json:"success"`
	ID               string           `json:"id,omitempty"`
	Errors           []string         `json:"errors"`
	Warnings         []string         `json:"warnings"`
	ParentValidation *validate.Result `json:"parent_validation,omitempty"`
}

func failure(r validate.Result) CreateResult {
	return CreateResult{Errors: r.Errors, Warnings: r.Warnings}
}

// CreateCampaign validates fields, stores the campaign and audits the
// create. The committed record is re-validated before the transaction
// commits: defaulting happens between validation and write, and the
// committed record is the source of truth for conformance. A recheck
// failure rolls the write back and surfaces as one ordinary failure.
func (c Coordinator) CreateCampaign(ctx context.Context, camp domain.Campaign, actorID string) (CreateResult, error) {
	c.applyCampaignDefaults(&camp)
	if r := validate.CampaignFields(camp); !r.Valid() {
		return failure(r), nil
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return CreateResult{}, err
	}
	defer tx.Rollback()

	if err := c.Store.InsertCampaign(ctx, tx, camp); err != nil {
		return CreateResult{}, err
	}
	committed, err := c.Store.GetCampaignTx(ctx, tx, camp.ID)
	if err != nil {
		return CreateResult{}, err
	}
	recheck := validate.CampaignFields(committed)
	if !recheck.Valid() {
		return failure(recheck), nil
	}
	if err := c.Audit.Append(ctx, tx, events.ActionCreated, domain.KindCampaign, committed.ID, actorID, events.Changes{
		"name":   committed.Name,
		"state":  committed.State,
		"budget": committed.Budget,
	}); err != nil {
		return CreateResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Success: true, ID: committed.ID, Warnings: recheck.Warnings}, nil
}

// CreateProject checks the parent campaign before anything else; a
// failed parent check returns immediately with the detail attached and
// nothing stored.
func (c Coordinator) CreateProject(ctx context.Context, campaignID string, proj domain.Project, actorID string) (CreateResult, error) {
	parentRes, camp, err := c.Checker.ParentCampaign(ctx, nil, campaignID)
	if err != nil {
		return CreateResult{}, err
	}
	if !parentRes.Valid() {
		res := failure(parentRes)
		res.ParentValidation = &parentRes
		return res, nil
	}

	proj.CampaignID = campaignID
	c.applyProjectDefaults(&proj)
	fieldRes := validate.ProjectFields(proj)
	fieldRes.Merge(validate.ProjectWithinCampaignDates(proj, camp))
	if !fieldRes.Valid() {
		return failure(fieldRes), nil
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return CreateResult{}, err
	}
	defer tx.Rollback()

	if err := c.Store.InsertProject(ctx, tx, proj); err != nil {
		return CreateResult{}, err
	}
	committed, err := c.Store.GetProjectTx(ctx, tx, proj.ID)
	if err != nil {
		return CreateResult{}, err
	}
	recheck := validate.ProjectFields(committed)
	parentRecheck, committedCamp, err := c.Checker.ParentCampaign(ctx, tx, committed.CampaignID)
	if err != nil {
		return CreateResult{}, err
	}
	recheck.Merge(parentRecheck)
	if recheck.Valid() {
		recheck.Merge(validate.ProjectWithinCampaignDates(committed, committedCamp))
	}
	if !recheck.Valid() {
		return failure(recheck), nil
	}
	if err := c.Audit.Append(ctx, tx, events.ActionCreated, domain.KindProject, committed.ID, actorID, events.Changes{
		"name":        committed.Name,
		"state":       committed.State,
		"campaign_id": committed.CampaignID,
	}); err != nil {
		return CreateResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CreateResult{}, err
	}
	if committed.Budget != 0 {
		if err := c.RollUpBudget(ctx, committed.CampaignID, actorID); err != nil {
			return CreateResult{}, err
		}
	}
	return CreateResult{Success: true, ID: committed.ID, Warnings: recheck.Warnings}, nil
}

// CreateTask mirrors CreateProject: parent project first, then field
// and assignee checks together so the caller sees every violation in
// one round trip. The campaign back-reference is denormalized from the
// parent project at creation time only; the recheck walks the
// authoritative Task->Project->Campaign chain, never the copy.
func (c Coordinator) CreateTask(ctx context.Context, projectID string, task domain.Task, actorID string) (CreateResult, error) {
	parentRes, proj, err := c.Checker.ParentProject(ctx, nil, projectID)
	if err != nil {
		return CreateResult{}, err
	}
	if !parentRes.Valid() {
		res := failure(parentRes)
		res.ParentValidation = &parentRes
		return res, nil
	}

	task.ProjectID = projectID
	task.CampaignID = proj.CampaignID
	c.applyTaskDefaults(&task)
	fieldRes := validate.TaskFields(task)
	assigneeRes, err := c.Checker.Assignee(ctx, task.AssigneeID)
	if err != nil {
		return CreateResult{}, err
	}
	fieldRes.Merge(assigneeRes)
	if !fieldRes.Valid() {
		return failure(fieldRes), nil
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return CreateResult{}, err
	}
	defer tx.Rollback()

	if err := c.Store.InsertTask(ctx, tx, task); err != nil {
		return CreateResult{}, err
	}
	committed, err := c.Store.GetTaskTx(ctx, tx, task.ID)
	if err != nil {
		return CreateResult{}, err
	}
	recheck := validate.TaskFields(committed)
	parentRecheck, committedProj, err := c.Checker.ParentProject(ctx, tx, committed.ProjectID)
	if err != nil {
		return CreateResult{}, err
	}
	recheck.Merge(parentRecheck)
	if parentRecheck.Valid() {
		campRecheck, _, err := c.Checker.ParentCampaign(ctx, tx, committedProj.CampaignID)
		if err != nil {
			return CreateResult{}, err
		}
		recheck.Merge(campRecheck)
	}
	if !recheck.Valid() {
		return failure(recheck), nil
	}
	if err := c.Audit.Append(ctx, tx, events.ActionCreated, domain.KindTask, committed.ID, actorID, events.Changes{
		"name":        committed.Name,
		"state":       committed.State,
		"project_id":  committed.ProjectID,
		"assignee_id": committed.AssigneeID,
	}); err != nil {
		return CreateResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Success: true, ID: committed.ID, Warnings: recheck.Warnings}, nil
}

func (c Coordinator) applyCampaignDefaults(camp *domain.Campaign) {
	if camp.ID == "" {
		camp.ID = uuid.New().String()
	}
	if camp.State == "" {
		camp.State = domain.InitialState(domain.KindCampaign)
	}
	now := c.nowString()
	if camp.CreatedAt == "" {
		camp.CreatedAt = now
	}
	camp.UpdatedAt = now
}

func (c Coordinator) applyProjectDefaults(proj *domain.Project) {
	if proj.ID == "" {
		proj.ID = uuid.New().String()
	}
	if proj.State == "" {
		proj.State = domain.InitialState(domain.KindProject)
	}
	now := c.nowString()
	if proj.CreatedAt == "" {
		proj.CreatedAt = now
	}
	proj.UpdatedAt = now
}

func (c Coordinator) applyTaskDefaults(task *domain.Task) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.State == "" {
		task.State = domain.InitialState(domain.KindTask)
	}
	now := c.nowString()
	if task.CreatedAt == "" {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
}
