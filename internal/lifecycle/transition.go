package lifecycle

import (
	"context"
	"fmt"

	"campflow/internal/domain"
	"campflow/internal/events"
)

// TransitionResult is the envelope for state-change requests. A
// blocked transition is a recoverable outcome, not a Go error.
type TransitionResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// TransitionState applies a state change. Transitions are deliberately
// permissive (a campaign may jump from draft straight to completed,
// matching the observed behavior); the only hard gates are the target
// label belonging to the kind's declared set and terminal states being
// exits. Archival or cancellation of a campaign or project cascades to
// descendants; any terminal arrival triggers bottom-up aggregation.
func (c Coordinator) TransitionState(ctx context.Context, kind, id, newState, actorID string) (TransitionResult, error) {
	current, err := c.Store.GetState(ctx, nil, kind, id)
	if err != nil {
		return TransitionResult{}, err
	}
	if domain.Terminal(current) {
		return TransitionResult{Errors: []string{
			fmt.Sprintf("%s %s is %s; no transitions out of a terminal state (use unarchive)", kind, id, current),
		}}, nil
	}
	if !domain.ValidState(kind, newState) {
		return TransitionResult{Errors: []string{fmt.Sprintf("invalid %s state %q", kind, newState)}}, nil
	}
	if newState == current {
		return TransitionResult{Success: true}, nil
	}

	if err := c.applyState(ctx, kind, id, current, newState, actorID, nil); err != nil {
		return TransitionResult{}, err
	}

	if kind != domain.KindTask && (newState == domain.StateArchived || newState == domain.StateCancelled) {
		if err := c.CascadeDown(ctx, kind, id, newState, actorID); err != nil {
			return TransitionResult{}, err
		}
	}
	if domain.Terminal(newState) {
		if err := c.onChildTerminal(ctx, kind, id, actorID); err != nil {
			return TransitionResult{}, err
		}
	}
	return TransitionResult{Success: true}, nil
}

// Unarchive is the one sanctioned exit from a terminal state. It is a
// distinct operation rather than a transition; the record returns to
// on_hold for an explicit follow-up decision.
func (c Coordinator) Unarchive(ctx context.Context, kind, id, actorID string) (TransitionResult, error) {
	if kind == domain.KindTask {
		return TransitionResult{Errors: []string{"tasks cannot be unarchived"}}, nil
	}
	current, err := c.Store.GetState(ctx, nil, kind, id)
	if err != nil {
		return TransitionResult{}, err
	}
	if current != domain.StateArchived {
		return TransitionResult{Errors: []string{fmt.Sprintf("%s %s is %s, not archived", kind, id, current)}}, nil
	}
	if err := c.applyState(ctx, kind, id, current, domain.StateOnHold, actorID, events.Changes{"via": "unarchive"}); err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Success: true}, nil
}

// CascadeDown propagates archived/cancelled to every direct child and
// one level further (project to task). No field re-validation: a
// terminal parking state is always legal to enter, even the archived
// label a task cannot otherwise reach. Each child commits in its own
// transaction, so a retried cascade resumes from the first child not
// yet applied; re-applying the state a child already holds is a no-op
// and writes no audit entry.
func (c Coordinator) CascadeDown(ctx context.Context, parentKind, parentID, newState, actorID string) error {
	if newState != domain.StateArchived && newState != domain.StateCancelled {
		return fmt.Errorf("cascade only propagates archived or cancelled, got %q", newState)
	}
	switch parentKind {
	case domain.KindCampaign:
		projects, err := c.Store.ListProjects(ctx, parentID)
		if err != nil {
			return err
		}
		for _, p := range projects {
			if p.State != newState {
				if err := c.applyState(ctx, domain.KindProject, p.ID, p.State, newState, actorID, events.Changes{"cascade": true}); err != nil {
					return err
				}
			}
			// Recurse regardless: a prior interrupted cascade may have
			// set the project but not all of its tasks.
			if err := c.CascadeDown(ctx, domain.KindProject, p.ID, newState, actorID); err != nil {
				return err
			}
		}
		return nil
	case domain.KindProject:
		tasks, err := c.Store.ListTasks(ctx, parentID)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.State == newState {
				continue
			}
			if err := c.applyState(ctx, domain.KindTask, t.ID, t.State, newState, actorID, events.Changes{"cascade": true}); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("cascade from unknown parent kind %q", parentKind)
	}
}

// onChildTerminal recomputes the all-children-terminal condition for
// the immediate parent. When it holds, the parent auto-completes with
// its end date set to now, and the check repeats one level up: project
// completion may complete the campaign. Unconditional once the
// precondition holds; the surprising "complete one task, the whole
// campaign closes" effect is preserved behavior, not a bug.
func (c Coordinator) onChildTerminal(ctx context.Context, childKind, childID, actorID string) error {
	var parentKind, parentID string
	switch childKind {
	case domain.KindTask:
		t, err := c.Store.GetTask(ctx, childID)
		if err != nil {
			return err
		}
		parentKind, parentID = domain.KindProject, t.ProjectID
	case domain.KindProject:
		p, err := c.Store.GetProject(ctx, childID)
		if err != nil {
			return err
		}
		parentKind, parentID = domain.KindCampaign, p.CampaignID
	default:
		return nil
	}

	parentState, err := c.Store.GetState(ctx, nil, parentKind, parentID)
	if err != nil {
		// A dangling parent reference orphans the child rather than
		// failing the child's own transition.
		return nil
	}
	if domain.Terminal(parentState) {
		return nil
	}

	allTerminal := true
	switch parentKind {
	case domain.KindProject:
		tasks, err := c.Store.ListTasks(ctx, parentID)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		for _, t := range tasks {
			if !domain.Terminal(t.State) {
				allTerminal = false
				break
			}
		}
	case domain.KindCampaign:
		projects, err := c.Store.ListProjects(ctx, parentID)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			return nil
		}
		for _, p := range projects {
			if !domain.Terminal(p.State) {
				allTerminal = false
				break
			}
		}
	}
	if !allTerminal {
		return nil
	}

	now := c.nowString()
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	fields := map[string]any{
		"state":      domain.StateCompleted,
		"end_date":   now,
		"updated_at": now,
	}
	if err := c.Store.UpdateFields(ctx, tx, parentKind, parentID, fields); err != nil {
		return err
	}
	if err := c.Audit.Append(ctx, tx, events.ActionStateChanged, parentKind, parentID, actorID, events.Changes{
		"from":           parentState,
		"to":             domain.StateCompleted,
		"auto_completed": true,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return c.onChildTerminal(ctx, parentKind, parentID, actorID)
}

// applyState writes a state change and its audit entry in one
// transaction. Tasks reaching completed also get their completion
// timestamp.
func (c Coordinator) applyState(ctx context.Context, kind, id, from, to, actorID string, extra events.Changes) error {
	now := c.nowString()
	fields := map[string]any{
		"state":      to,
		"updated_at": now,
	}
	if kind == domain.KindTask && to == domain.StateCompleted {
		fields["completed_at"] = now
	}
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := c.Store.UpdateFields(ctx, tx, kind, id, fields); err != nil {
		return err
	}
	changes := events.Changes{"from": from, "to": to}
	for k, v := range extra {
		changes[k] = v
	}
	if err := c.Audit.Append(ctx, tx, events.ActionStateChanged, kind, id, actorID, changes); err != nil {
		return err
	}
	return tx.Commit()
}
