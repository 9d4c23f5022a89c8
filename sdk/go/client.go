package campflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Campflow HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Campaign represents the API campaign model.
type Campaign struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	State           string   `json:"state"`
	OwnerID         string   `json:"owner_id,omitempty"`
	Budget          float64  `json:"budget"`
	EstimatedBudget *float64 `json:"estimated_budget,omitempty"`
	StartDate       string   `json:"start_date,omitempty"`
	EndDate         string   `json:"end_date,omitempty"`
}

// Project represents the API project model.
type Project struct {
	ID         string  `json:"id"`
	CampaignID string  `json:"campaign_id"`
	Name       string  `json:"name"`
	State      string  `json:"state"`
	Budget     float64 `json:"budget"`
}

// Task represents the API task model.
type Task struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	CampaignID  string  `json:"campaign_id"`
	Name        string  `json:"name"`
	State       string  `json:"state"`
	AssigneeID  string  `json:"assignee_id"`
	DueDate     string  `json:"due_date,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// AuditEntry represents one audit log record.
type AuditEntry struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Changes    map[string]any `json:"changes"`
}

// CreateResult is the uniform create envelope.
type CreateResult struct {
	Success  bool     `json:"success"`
	ID       string   `json:"id,omitempty"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// MutationResult is the envelope for updates and transitions.
type MutationResult struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// PaginatedAudit wraps audit listings with a cursor.
type PaginatedAudit struct {
	Items      []AuditEntry `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCampaign creates a campaign.
func (c *Client) CreateCampaign(ctx context.Context, fields map[string]any) (CreateResult, error) {
	var resp CreateResult
	err := c.do(ctx, http.MethodPost, "campaigns", fields, &resp)
	return resp, err
}

// GetCampaign fetches a campaign by id.
func (c *Client) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	var resp Campaign
	err := c.do(ctx, http.MethodGet, "campaigns/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListCampaigns returns all campaigns.
func (c *Client) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	var resp []Campaign
	err := c.do(ctx, http.MethodGet, "campaigns", nil, &resp)
	return resp, err
}

// CreateProject creates a project under a campaign.
func (c *Client) CreateProject(ctx context.Context, campaignID string, fields map[string]any) (CreateResult, error) {
	var resp CreateResult
	endpoint := fmt.Sprintf("campaigns/%s/projects", url.PathEscape(campaignID))
	err := c.do(ctx, http.MethodPost, endpoint, fields, &resp)
	return resp, err
}

// ListProjects returns a campaign's projects.
func (c *Client) ListProjects(ctx context.Context, campaignID string) ([]Project, error) {
	var resp []Project
	endpoint := fmt.Sprintf("campaigns/%s/projects", url.PathEscape(campaignID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateTask creates a task under a project.
func (c *Client) CreateTask(ctx context.Context, projectID string, fields map[string]any) (CreateResult, error) {
	var resp CreateResult
	endpoint := fmt.Sprintf("projects/%s/tasks", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, fields, &resp)
	return resp, err
}

// ListTasks returns a project's tasks.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	var resp []Task
	endpoint := fmt.Sprintf("projects/%s/tasks", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Transition changes an entity's state. Kind is campaign, project or task.
func (c *Client) Transition(ctx context.Context, kind, id, state string) (MutationResult, error) {
	var resp MutationResult
	endpoint := fmt.Sprintf("%ss/%s/transition", kind, url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"state": state}, &resp)
	return resp, err
}

// Update applies a partial field update. Kind is campaign, project or task.
func (c *Client) Update(ctx context.Context, kind, id string, fields map[string]any) (MutationResult, error) {
	var resp MutationResult
	endpoint := fmt.Sprintf("%ss/%s", kind, url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, fields, &resp)
	return resp, err
}

// Audit returns recent audit entries.
func (c *Client) Audit(ctx context.Context, limit int) ([]AuditEntry, error) {
	page, err := c.AuditPage(ctx, limit, "")
	return page.Items, err
}

// AuditPage returns a paginated audit listing.
func (c *Client) AuditPage(ctx context.Context, limit int, cursor string) (PaginatedAudit, error) {
	endpoint := "audit"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedAudit
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/api/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
