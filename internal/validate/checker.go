package validate

import (
	"context"
	"database/sql"
	"errors"

	"campflow/internal/directory"
	"campflow/internal/domain"
	"campflow/internal/store"
)

// Checker runs reference-level checks: anything that needs a store or
// directory lookup. Split from the field checks so those stay pure.
// Checker methods report a missing or ineligible reference as a
// blocking validation error, not a Go error; the error return is for
// infrastructure failures only.
type Checker struct {
	Store     store.Store
	Directory directory.Directory
}

// ParentCampaign verifies a campaign exists and is not cancelled, the
// one campaign state that blocks child creation.
func (c Checker) ParentCampaign(ctx context.Context, tx *sql.Tx, campaignID string) (Result, domain.Campaign, error) {
	var r Result
	if campaignID == "" {
		r.Errorf("campaign reference is required")
		return r, domain.Campaign{}, nil
	}
	camp, err := c.Store.GetCampaignTx(ctx, tx, campaignID)
	if errors.Is(err, store.ErrNotFound) {
		r.Errorf("campaign %s does not exist", campaignID)
		return r, domain.Campaign{}, nil
	}
	if err != nil {
		return r, domain.Campaign{}, err
	}
	if camp.State == domain.StateCancelled {
		r.Errorf("campaign %s is cancelled and cannot take new projects", campaignID)
	}
	return r, camp, nil
}

// ParentProject verifies a project exists and is not closed. Completed
// and cancelled both block task creation.
func (c Checker) ParentProject(ctx context.Context, tx *sql.Tx, projectID string) (Result, domain.Project, error) {
	var r Result
	if projectID == "" {
		r.Errorf("project reference is required")
		return r, domain.Project{}, nil
	}
	proj, err := c.Store.GetProjectTx(ctx, tx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		r.Errorf("project %s does not exist", projectID)
		return r, domain.Project{}, nil
	}
	if err != nil {
		return r, domain.Project{}, err
	}
	if proj.State == domain.StateCancelled || proj.State == domain.StateCompleted {
		r.Errorf("project %s is closed (%s) and cannot take new tasks", projectID, proj.State)
	}
	return r, proj, nil
}

// Assignee verifies the referenced user exists and is active.
func (c Checker) Assignee(ctx context.Context, userID string) (Result, error) {
	var r Result
	if userID == "" {
		r.Errorf("assignee is required")
		return r, nil
	}
	ok, err := c.Directory.UserExistsAndActive(ctx, userID)
	if err != nil {
		return r, err
	}
	if !ok {
		r.Errorf("assignee %s does not exist or is inactive", userID)
	}
	return r, nil
}
