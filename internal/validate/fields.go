package validate

import (
	"math"
	"time"
	"unicode/utf8"

	"campflow/internal/domain"
)

// Field length limits.
const (
	MaxCampaignName        = 100
	MaxCampaignDescription = 1000
	MaxProjectName         = 100
	MaxProjectDescription  = 1000
	MaxTaskName            = 80
	MaxTaskDescription     = 500
)

// An estimated budget more than 20% over the committed budget draws a
// warning; the threshold is part of the validation contract, not
// configuration.
const budgetVarianceRatio = 1.2

// CampaignFields checks a campaign's self-contained constraints. Pure:
// no store access, so it runs before any I/O and tests need no fixture.
func CampaignFields(c domain.Campaign) Result {
	var r Result
	checkName(&r, c.Name, MaxCampaignName)
	checkDescription(&r, c.Description, MaxCampaignDescription)
	checkState(&r, domain.KindCampaign, c.State)
	checkDateOrder(&r, c.StartDate, c.EndDate)
	if c.Budget < 0 {
		r.Errorf("budget must be >= 0")
	}
	if c.EstimatedBudget != nil && *c.EstimatedBudget < 0 {
		r.Errorf("estimated_budget must be >= 0")
	}
	checkPriority(&r, c.Priority)
	if c.EstimatedBudget != nil && c.Budget > 0 && *c.EstimatedBudget > c.Budget*budgetVarianceRatio {
		pct := int(math.Round((*c.EstimatedBudget - c.Budget) / c.Budget * 100))
		r.Warnf("estimated budget exceeds budget by %d%%", pct)
	}
	return r
}

// ProjectFields checks a project's self-contained constraints. Parent
// validity is the Checker's job.
func ProjectFields(p domain.Project) Result {
	var r Result
	checkName(&r, p.Name, MaxProjectName)
	checkDescription(&r, p.Description, MaxProjectDescription)
	checkState(&r, domain.KindProject, p.State)
	checkDateOrder(&r, p.StartDate, p.EndDate)
	if p.Budget < 0 {
		r.Errorf("budget must be >= 0")
	}
	checkPriority(&r, p.Priority)
	if p.CampaignID == "" {
		r.Errorf("campaign reference is required")
	}
	return r
}

// TaskFields checks a task's self-contained constraints. Whether the
// assignee exists and is active is the Checker's job; presence of the
// reference is checked here.
func TaskFields(t domain.Task) Result {
	var r Result
	checkName(&r, t.Name, MaxTaskName)
	checkDescription(&r, t.Description, MaxTaskDescription)
	checkState(&r, domain.KindTask, t.State)
	if t.AssigneeID == "" {
		r.Errorf("assignee is required")
	}
	if t.DueDate != "" {
		checkDate(&r, "due_date", t.DueDate)
	}
	if t.EstimatedEffort != nil && *t.EstimatedEffort < 0 {
		r.Errorf("estimated_effort must be >= 0")
	}
	checkPriority(&r, t.Priority)
	if t.ProjectID == "" {
		r.Errorf("project reference is required")
	}
	return r
}

// ProjectWithinCampaignDates warns when project dates fall outside the
// parent campaign's range. Soft by design: never blocking.
func ProjectWithinCampaignDates(p domain.Project, c domain.Campaign) Result {
	var r Result
	cs, csOK := parseDate(c.StartDate)
	ce, ceOK := parseDate(c.EndDate)
	if ps, ok := parseDate(p.StartDate); ok && csOK && ps.Before(cs) {
		r.Warnf("project start date precedes campaign start date")
	}
	if pe, ok := parseDate(p.EndDate); ok && ceOK && pe.After(ce) {
		r.Warnf("project end date exceeds campaign end date")
	}
	return r
}

func checkName(r *Result, name string, max int) {
	if name == "" {
		r.Errorf("name is required")
		return
	}
	if utf8.RuneCountInString(name) > max {
		r.Errorf("name exceeds %d characters", max)
	}
}

func checkDescription(r *Result, desc string, max int) {
	if utf8.RuneCountInString(desc) > max {
		r.Errorf("description exceeds %d characters", max)
	}
}

func checkState(r *Result, kind, state string) {
	if state == "" {
		return
	}
	if !domain.ValidState(kind, state) {
		r.Errorf("invalid %s state %q", kind, state)
	}
}

func checkPriority(r *Result, p *int) {
	if p != nil && (*p < 1 || *p > 5) {
		r.Errorf("priority must be between 1 and 5")
	}
}

func checkDateOrder(r *Result, start, end string) {
	var s, e time.Time
	var sOK, eOK bool
	if start != "" {
		s, sOK = parseDate(start)
		if !sOK {
			r.Errorf("start_date must be RFC 3339")
		}
	}
	if end != "" {
		e, eOK = parseDate(end)
		if !eOK {
			r.Errorf("end_date must be RFC 3339")
		}
	}
	if sOK && eOK && !s.Before(e) {
		r.Errorf("start date must precede end date")
	}
}

func checkDate(r *Result, field, value string) {
	if _, ok := parseDate(value); !ok {
		r.Errorf("%s must be RFC 3339", field)
	}
}

func parseDate(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
