package validate_test

import (
	"strings"
	"testing"

	"campflow/internal/domain"
	"campflow/internal/validate"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestCampaignFieldsRequired(t *testing.T) {
	r := validate.CampaignFields(domain.Campaign{})
	if r.Valid() {
		t.Fatalf("expected errors for empty campaign")
	}
	found := false
	for _, e := range r.Errors {
		if e == "name is required" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing name error, got %v", r.Errors)
	}
}

func TestCampaignFieldsLimits(t *testing.T) {
	c := domain.Campaign{
		Name:        strings.Repeat("x", validate.MaxCampaignName+1),
		Description: strings.Repeat("y", validate.MaxCampaignDescription+1),
	}
	r := validate.CampaignFields(c)
	if len(r.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", r.Errors)
	}
}

func TestCampaignFieldsDateOrder(t *testing.T) {
	c := domain.Campaign{
		Name:      "Launch",
		StartDate: "2026-06-01T00:00:00Z",
		EndDate:   "2026-01-01T00:00:00Z",
	}
	r := validate.CampaignFields(c)
	if r.Valid() {
		t.Fatalf("expected date order error")
	}
	if r.Errors[0] != "start date must precede end date" {
		t.Fatalf("unexpected error: %v", r.Errors)
	}
}

func TestCampaignFieldsBadDate(t *testing.T) {
	c := domain.Campaign{Name: "Launch", StartDate: "June 1st"}
	r := validate.CampaignFields(c)
	if r.Valid() {
		t.Fatalf("expected date format error")
	}
}

func TestBudgetVarianceWarning(t *testing.T) {
	// 22% over: warning, still valid.
	c := domain.Campaign{Name: "Launch", Budget: 1000, EstimatedBudget: floatPtr(1220)}
	r := validate.CampaignFields(c)
	if !r.Valid() {
		t.Fatalf("variance must not block: %v", r.Errors)
	}
	if len(r.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", r.Warnings)
	}
	if r.Warnings[0] != "estimated budget exceeds budget by 22%" {
		t.Fatalf("unexpected warning: %q", r.Warnings[0])
	}

	// 8% over: within tolerance, no warning.
	c.EstimatedBudget = floatPtr(1080)
	r = validate.CampaignFields(c)
	if len(r.Warnings) != 0 {
		t.Fatalf("unexpected warning at 8%%: %v", r.Warnings)
	}
}

func TestNegativeBudgets(t *testing.T) {
	c := domain.Campaign{Name: "Launch", Budget: -5, EstimatedBudget: floatPtr(-1)}
	r := validate.CampaignFields(c)
	if len(r.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", r.Errors)
	}
}

func TestPriorityBounds(t *testing.T) {
	for _, p := range []int{0, 6, -3} {
		c := domain.Campaign{Name: "Launch", Priority: intPtr(p)}
		if r := validate.CampaignFields(c); r.Valid() {
			t.Fatalf("priority %d accepted", p)
		}
	}
	c := domain.Campaign{Name: "Launch", Priority: intPtr(3)}
	if r := validate.CampaignFields(c); !r.Valid() {
		t.Fatalf("priority 3 rejected: %v", r.Errors)
	}
}

func TestProjectFieldsReferenceRequired(t *testing.T) {
	r := validate.ProjectFields(domain.Project{Name: "Teaser"})
	if r.Valid() {
		t.Fatalf("expected campaign reference error")
	}
}

func TestProjectStateEnum(t *testing.T) {
	p := domain.Project{Name: "Teaser", CampaignID: "c1", State: "active"}
	// "active" is a campaign state, not a project state.
	if r := validate.ProjectFields(p); r.Valid() {
		t.Fatalf("expected invalid state error")
	}
	p.State = domain.StateInProgress
	if r := validate.ProjectFields(p); !r.Valid() {
		t.Fatalf("in_progress rejected: %v", r.Errors)
	}
}

func TestTaskFieldsAssigneeAndLimits(t *testing.T) {
	r := validate.TaskFields(domain.Task{Name: strings.Repeat("x", validate.MaxTaskName+1), ProjectID: "p1"})
	if r.Valid() {
		t.Fatalf("expected errors")
	}
	if len(r.Errors) != 2 {
		t.Fatalf("expected name limit + assignee errors, got %v", r.Errors)
	}
}

func TestTaskDueDateFormat(t *testing.T) {
	task := domain.Task{Name: "Draft copy", ProjectID: "p1", AssigneeID: "u1", DueDate: "tomorrow"}
	if r := validate.TaskFields(task); r.Valid() {
		t.Fatalf("expected due_date error")
	}
	task.DueDate = "2026-03-01T00:00:00Z"
	if r := validate.TaskFields(task); !r.Valid() {
		t.Fatalf("valid due date rejected: %v", r.Errors)
	}
}

func TestProjectWithinCampaignDates(t *testing.T) {
	camp := domain.Campaign{
		StartDate: "2026-02-01T00:00:00Z",
		EndDate:   "2026-04-01T00:00:00Z",
	}
	proj := domain.Project{
		StartDate: "2026-01-01T00:00:00Z",
		EndDate:   "2026-05-01T00:00:00Z",
	}
	r := validate.ProjectWithinCampaignDates(proj, camp)
	if !r.Valid() {
		t.Fatalf("date range mismatch must warn, not block: %v", r.Errors)
	}
	if len(r.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", r.Warnings)
	}

	// Inside the range: silent.
	proj.StartDate = "2026-02-10T00:00:00Z"
	proj.EndDate = "2026-03-10T00:00:00Z"
	r = validate.ProjectWithinCampaignDates(proj, camp)
	if len(r.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", r.Warnings)
	}
}

func TestResultMerge(t *testing.T) {
	var a, b validate.Result
	a.Errorf("one")
	b.Errorf("two")
	b.Warnf("careful")
	b.Set("count", 3)
	a.Merge(b)
	if len(a.Errors) != 2 || len(a.Warnings) != 1 {
		t.Fatalf("merge lost entries: %+v", a)
	}
	if a.Data["count"] != 3 {
		t.Fatalf("merge lost data: %+v", a.Data)
	}
}
