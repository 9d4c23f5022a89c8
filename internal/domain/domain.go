package domain

// Entity kinds used across the store, lifecycle and audit layers.
const (
	KindCampaign = "campaign"
	KindProject  = "project"
	KindTask     = "task"
)

// Lifecycle states. Campaigns and projects share the full set; tasks
// start at "new" and have no on_hold/archived label of their own
// (a cascade may still park a task in "archived", see lifecycle).
const (
	StateDraft      = "draft"
	StatePlanned    = "planned"
	StateActive     = "active"
	StateInProgress = "in_progress"
	StateOnHold     = "on_hold"
	StateNew        = "new"
	StatePending    = "pending"
	StateCompleted  = "completed"
	StateCancelled  = "cancelled"
	StateArchived   = "archived"
)

type Campaign struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	StartDate       string   `json:"start_date,omitempty" format:"date-time"`
	EndDate         string   `json:"end_date,omitempty" format:"date-time"`
	State           string   `json:"state" enum:"draft,planned,active,on_hold,completed,cancelled,archived"`
	OwnerID         string   `json:"owner_id,omitempty"`
	Budget          float64  `json:"budget"`
	EstimatedBudget *float64 `json:"estimated_budget,omitempty"`
	Priority        *int     `json:"priority,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

type Project struct {
	ID          string  `json:"id"`
	CampaignID  string  `json:"campaign_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	StartDate   string  `json:"start_date,omitempty" format:"date-time"`
	EndDate     string  `json:"end_date,omitempty" format:"date-time"`
	State       string  `json:"state" enum:"draft,planned,in_progress,on_hold,completed,cancelled,archived"`
	Priority    *int    `json:"priority,omitempty"`
	Budget      float64 `json:"budget"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Task.CampaignID duplicates Project.CampaignID for query convenience.
// It is written once at creation and never consulted for cascade or
// validation decisions; the Project->Campaign edge is authoritative.
type Task struct {
	ID              string   `json:"id"`
	ProjectID       string   `json:"project_id"`
	CampaignID      string   `json:"campaign_id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	AssigneeID      string   `json:"assignee_id"`
	DueDate         string   `json:"due_date,omitempty" format:"date-time"`
	EstimatedEffort *float64 `json:"estimated_effort,omitempty"`
	Priority        *int     `json:"priority,omitempty"`
	State           string   `json:"state" enum:"new,in_progress,pending,completed,cancelled"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
	CompletedAt     *string  `json:"completed_at,omitempty" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// AuditEntry is an append-only record of a committed change. Changes
// holds a JSON snapshot of the fields the action touched.
type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Action     string `json:"action" enum:"created,updated,state-changed"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Changes    string `json:"changes_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

var campaignStates = []string{StateDraft, StatePlanned, StateActive, StateOnHold, StateCompleted, StateCancelled, StateArchived}
var projectStates = []string{StateDraft, StatePlanned, StateInProgress, StateOnHold, StateCompleted, StateCancelled, StateArchived}
var taskStates = []string{StateNew, StateInProgress, StatePending, StateCompleted, StateCancelled}

// StatesFor returns the declared state set for a kind.
func StatesFor(kind string) []string {
	switch kind {
	case KindCampaign:
		return campaignStates
	case KindProject:
		return projectStates
	case KindTask:
		return taskStates
	}
	return nil
}

// ValidState reports whether state belongs to the declared set of kind.
func ValidState(kind, state string) bool {
	for _, s := range StatesFor(kind) {
		if s == state {
			return true
		}
	}
	return false
}

// InitialState is the state assigned when a create omits one.
func InitialState(kind string) string {
	if kind == KindTask {
		return StateNew
	}
	return StateDraft
}

// Terminal reports whether a state admits no further ordinary
// transition. Archived counts for every kind: a cascade may have put a
// task there even though the task enum does not include it.
func Terminal(state string) bool {
	switch state {
	case StateCompleted, StateCancelled, StateArchived:
		return true
	}
	return false
}
