package server

import (
	"encoding/json"

	"campflow/internal/domain"
	"campflow/internal/lifecycle"
	"campflow/internal/validate"
)

type CreateCampaignRequest struct {
	Name            string   `json:"name"`
	Description     *string  `json:"description,omitempty"`
	StartDate       *string  `json:"start_date,omitempty"`
	EndDate         *string  `json:"end_date,omitempty"`
	OwnerID         *string  `json:"owner_id,omitempty"`
	Budget          *float64 `json:"budget,omitempty"`
	EstimatedBudget *float64 `json:"estimated_budget,omitempty"`
	Priority        *int     `json:"priority,omitempty"`
}

type CreateProjectRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	StartDate   *string  `json:"start_date,omitempty"`
	EndDate     *string  `json:"end_date,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
}

type CreateTaskRequest struct {
	Name            string   `json:"name"`
	Description     *string  `json:"description,omitempty"`
	AssigneeID      string   `json:"assignee_id"`
	DueDate         *string  `json:"due_date,omitempty"`
	EstimatedEffort *float64 `json:"estimated_effort,omitempty"`
	Priority        *int     `json:"priority,omitempty"`
}

type TransitionRequest struct {
	State string `json:"state"`
}

type CreateUserRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

// CreateResponse is the uniform create envelope.
type CreateResponse struct {
	Success          bool             `json:"success"`
	ID               string           `json:"id,omitempty"`
	Errors           []string         `json:"errors"`
	Warnings         []string         `json:"warnings"`
	ParentValidation *validate.Result `json:"parent_validation,omitempty"`
}

type MutationResponse struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type AuditEntryResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Changes    map[string]any `json:"changes"`
}

type paginatedAudit struct {
	Items      []AuditEntryResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

func createResponse(r lifecycle.CreateResult) CreateResponse {
	return CreateResponse{
		Success:          r.Success,
		ID:               r.ID,
		Errors:           nonNilSlice(r.Errors),
		Warnings:         nonNilSlice(r.Warnings),
		ParentValidation: r.ParentValidation,
	}
}

func transitionResponse(r lifecycle.TransitionResult) MutationResponse {
	return MutationResponse{
		Success:  r.Success,
		Errors:   nonNilSlice(r.Errors),
		Warnings: []string{},
	}
}

func updateResponse(r lifecycle.UpdateResult) MutationResponse {
	return MutationResponse{
		Success:  r.Success,
		Errors:   nonNilSlice(r.Errors),
		Warnings: nonNilSlice(r.Warnings),
	}
}

func auditResponse(e domain.AuditEntry) AuditEntryResponse {
	changes := map[string]any{}
	if e.Changes != "" {
		_ = json.Unmarshal([]byte(e.Changes), &changes)
	}
	return AuditEntryResponse{
		ID:         e.ID,
		TS:         e.TS,
		Action:     e.Action,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Changes:    changes,
	}
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
