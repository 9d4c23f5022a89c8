package lifecycle

import (
	"context"
	"fmt"
	"math"

	"campflow/internal/domain"
	"campflow/internal/events"
	"campflow/internal/validate"
)

// UpdateResult is the envelope for partial updates.
type UpdateResult struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Fields a caller may touch through a partial update. State is absent
// on purpose: state changes go through TransitionState so the cascade
// and aggregation hooks always fire.
var updatableByKind = map[string]map[string]bool{
	domain.KindCampaign: {
		"name": true, "description": true, "start_date": true, "end_date": true,
		"owner_id": true, "budget": true, "estimated_budget": true, "priority": true,
	},
	domain.KindProject: {
		"name": true, "description": true, "start_date": true, "end_date": true,
		"campaign_id": true, "budget": true, "priority": true,
	},
	domain.KindTask: {
		"name": true, "description": true, "assignee_id": true, "due_date": true,
		"estimated_effort": true, "priority": true,
	},
}

// UpdateFields merges a partial field map into the stored record,
// re-validates the merged result and writes it with an audit entry.
// Changing a project's budget or campaign recomputes the roll-up on
// every campaign involved.
func (c Coordinator) UpdateFields(ctx context.Context, kind, id string, partial map[string]any, actorID string) (UpdateResult, error) {
	allowed, ok := updatableByKind[kind]
	if !ok {
		return UpdateResult{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	if len(partial) == 0 {
		return UpdateResult{Errors: []string{"no fields to update"}}, nil
	}
	var bad []string
	for k := range partial {
		if k == "state" {
			bad = append(bad, `field "state" is not updatable (use a state transition)`)
		} else if !allowed[k] {
			bad = append(bad, fmt.Sprintf("field %q is not updatable on %s", k, kind))
		}
	}
	if len(bad) > 0 {
		return UpdateResult{Errors: bad}, nil
	}

	switch kind {
	case domain.KindCampaign:
		return c.updateCampaign(ctx, id, partial, actorID)
	case domain.KindProject:
		return c.updateProject(ctx, id, partial, actorID)
	default:
		return c.updateTask(ctx, id, partial, actorID)
	}
}

func (c Coordinator) updateCampaign(ctx context.Context, id string, partial map[string]any, actorID string) (UpdateResult, error) {
	camp, err := c.Store.GetCampaign(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	var r validate.Result
	for k, v := range partial {
		switch k {
		case "name":
			asString(&r, k, v, &camp.Name)
		case "description":
			asString(&r, k, v, &camp.Description)
		case "start_date":
			asString(&r, k, v, &camp.StartDate)
		case "end_date":
			asString(&r, k, v, &camp.EndDate)
		case "owner_id":
			asString(&r, k, v, &camp.OwnerID)
		case "budget":
			asFloat(&r, k, v, &camp.Budget)
		case "estimated_budget":
			asFloatPtr(&r, k, v, &camp.EstimatedBudget)
		case "priority":
			asIntPtr(&r, k, v, &camp.Priority)
		}
	}
	if !r.Valid() {
		return UpdateResult{Errors: r.Errors}, nil
	}
	r.Merge(validate.CampaignFields(camp))
	if !r.Valid() {
		return UpdateResult{Errors: r.Errors, Warnings: r.Warnings}, nil
	}
	if err := c.writeUpdate(ctx, domain.KindCampaign, id, partial, actorID); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Success: true, Warnings: r.Warnings}, nil
}

func (c Coordinator) updateProject(ctx context.Context, id string, partial map[string]any, actorID string) (UpdateResult, error) {
	proj, err := c.Store.GetProject(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	oldCampaign := proj.CampaignID
	oldBudget := proj.Budget

	var r validate.Result
	for k, v := range partial {
		switch k {
		case "name":
			asString(&r, k, v, &proj.Name)
		case "description":
			asString(&r, k, v, &proj.Description)
		case "start_date":
			asString(&r, k, v, &proj.StartDate)
		case "end_date":
			asString(&r, k, v, &proj.EndDate)
		case "campaign_id":
			asString(&r, k, v, &proj.CampaignID)
		case "budget":
			asFloat(&r, k, v, &proj.Budget)
		case "priority":
			asIntPtr(&r, k, v, &proj.Priority)
		}
	}
	if !r.Valid() {
		return UpdateResult{Errors: r.Errors}, nil
	}
	r.Merge(validate.ProjectFields(proj))
	if proj.CampaignID != oldCampaign {
		// Re-parenting: the new campaign must pass the same checks a
		// fresh project creation would.
		parentRes, camp, err := c.Checker.ParentCampaign(ctx, nil, proj.CampaignID)
		if err != nil {
			return UpdateResult{}, err
		}
		r.Merge(parentRes)
		if parentRes.Valid() {
			r.Merge(validate.ProjectWithinCampaignDates(proj, camp))
		}
	}
	if !r.Valid() {
		return UpdateResult{Errors: r.Errors, Warnings: r.Warnings}, nil
	}
	if err := c.writeUpdate(ctx, domain.KindProject, id, partial, actorID); err != nil {
		return UpdateResult{}, err
	}

	if proj.Budget != oldBudget || proj.CampaignID != oldCampaign {
		if err := c.RollUpBudget(ctx, proj.CampaignID, actorID); err != nil {
			return UpdateResult{}, err
		}
	}
	if proj.CampaignID != oldCampaign {
		if err := c.RollUpBudget(ctx, oldCampaign, actorID); err != nil {
			return UpdateResult{}, err
		}
	}
	return UpdateResult{Success: true, Warnings: r.Warnings}, nil
}

func (c Coordinator) updateTask(ctx context.Context, id string, partial map[string]any, actorID string) (UpdateResult, error) {
	task, err := c.Store.GetTask(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	oldAssignee := task.AssigneeID

	var r validate.Result
	for k, v := range partial {
		switch k {
		case "name":
			asString(&r, k, v, &task.Name)
		case "description":
			asString(&r, k, v, &task.Description)
		case "assignee_id":
			asString(&r, k, v, &task.AssigneeID)
		case "due_date":
			asString(&r, k, v, &task.DueDate)
		case "estimated_effort":
			asFloatPtr(&r, k, v, &task.EstimatedEffort)
		case "priority":
			asIntPtr(&r, k, v, &task.Priority)
		}
	}
	if !r.Valid() {
		return UpdateResult{Errors: r.Errors}, nil
	}
	r.Merge(validate.TaskFields(task))
	if task.AssigneeID != oldAssignee {
		assigneeRes, err := c.Checker.Assignee(ctx, task.AssigneeID)
		if err != nil {
			return UpdateResult{}, err
		}
		r.Merge(assigneeRes)
	}
	if !r.Valid() {
		return UpdateResult{Errors: r.Errors, Warnings: r.Warnings}, nil
	}
	if err := c.writeUpdate(ctx, domain.KindTask, id, partial, actorID); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Success: true, Warnings: r.Warnings}, nil
}

// writeUpdate persists the changed columns and the audit snapshot in
// one transaction. The snapshot records the fields the caller sent,
// not the whole record.
func (c Coordinator) writeUpdate(ctx context.Context, kind, id string, partial map[string]any, actorID string) error {
	fields := make(map[string]any, len(partial)+1)
	changes := make(events.Changes, len(partial))
	for k, v := range partial {
		fields[k] = v
		changes[k] = v
	}
	fields["updated_at"] = c.nowString()

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := c.Store.UpdateFields(ctx, tx, kind, id, fields); err != nil {
		return err
	}
	if err := c.Audit.Append(ctx, tx, events.ActionUpdated, kind, id, actorID, changes); err != nil {
		return err
	}
	return tx.Commit()
}

// RollUpBudget recomputes a campaign's budget as the sum of its
// projects' budgets. Sum and campaign write share one transaction so
// the roll-up reflects a consistent snapshot. A campaign whose stored
// budget already matches is left untouched and gets no audit entry.
func (c Coordinator) RollUpBudget(ctx context.Context, campaignID, actorID string) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	camp, err := c.Store.GetCampaignTx(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	sum, err := c.Store.SumProjectBudgetsTx(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	if sum == camp.Budget {
		return nil
	}
	if err := c.Store.UpdateFields(ctx, tx, domain.KindCampaign, campaignID, map[string]any{
		"budget":     sum,
		"updated_at": c.nowString(),
	}); err != nil {
		return err
	}
	if err := c.Audit.Append(ctx, tx, events.ActionUpdated, domain.KindCampaign, campaignID, actorID, events.Changes{
		"budget":  sum,
		"rollup":  true,
		"from":    camp.Budget,
		"sourced": "project budgets",
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// JSON decoding hands every number over as float64; these coercions
// translate back to the field's native type.

func asString(r *validate.Result, key string, v any, dst *string) {
	if v == nil {
		*dst = ""
		return
	}
	s, ok := v.(string)
	if !ok {
		r.Errorf("field %q must be a string", key)
		return
	}
	*dst = s
}

func asFloat(r *validate.Result, key string, v any, dst *float64) {
	f, ok := toFloat(v)
	if !ok {
		r.Errorf("field %q must be a number", key)
		return
	}
	*dst = f
}

func asFloatPtr(r *validate.Result, key string, v any, dst **float64) {
	if v == nil {
		*dst = nil
		return
	}
	f, ok := toFloat(v)
	if !ok {
		r.Errorf("field %q must be a number", key)
		return
	}
	*dst = &f
}

func asIntPtr(r *validate.Result, key string, v any, dst **int) {
	if v == nil {
		*dst = nil
		return
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		r.Errorf("field %q must be an integer", key)
		return
	}
	n := int(f)
	*dst = &n
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
