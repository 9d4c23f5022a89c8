package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campflow/internal/db"
	"campflow/internal/directory"
	"campflow/internal/lifecycle"
	"campflow/internal/migrate"
	"campflow/internal/server"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	d := directory.SQL{DB: conn}
	co := lifecycle.New(conn, d)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	co.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	handler, err := server.New(server.Config{
		Coordinator: co,
		Directory:   &d,
		Auth: server.AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
			Logger:                 log.New(io.Discard, "", 0),
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// doJSON performs a request with the legacy actor header and decodes
// the JSON response into out when non-nil.
func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "alice")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s %s: %v (body: %s)", method, path, err, data)
		}
	}
	return resp.StatusCode
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/api/v1/campaigns")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "unauthorized" {
		t.Fatalf("error code = %q", body.Error.Code)
	}
}

func TestUnknownCampaignReturns404(t *testing.T) {
	srv := newTestServer(t)
	status := doJSON(t, srv, http.MethodGet, "/api/v1/campaigns/no-such-id", nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestFullLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	// Seed the actor so tasks can be assigned.
	status := doJSON(t, srv, http.MethodPost, "/api/v1/users", map[string]any{"id": "alice", "name": "Alice"}, nil)
	if status != http.StatusOK {
		t.Fatalf("create user status = %d", status)
	}

	var created struct {
		Success bool     `json:"success"`
		ID      string   `json:"id"`
		Errors  []string `json:"errors"`
	}
	status = doJSON(t, srv, http.MethodPost, "/api/v1/campaigns", map[string]any{
		"name":   "Spring Launch",
		"budget": 1000,
	}, &created)
	if status != http.StatusOK || !created.Success {
		t.Fatalf("create campaign: status=%d result=%+v", status, created)
	}
	campID := created.ID

	status = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/campaigns/%s/projects", campID), map[string]any{
		"name":   "Teaser",
		"budget": 400,
	}, &created)
	if status != http.StatusOK || !created.Success {
		t.Fatalf("create project: status=%d result=%+v", status, created)
	}
	projID := created.ID

	status = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/projects/%s/tasks", projID), map[string]any{
		"name":        "Draft copy",
		"assignee_id": "alice",
	}, &created)
	if status != http.StatusOK || !created.Success {
		t.Fatalf("create task: status=%d result=%+v", status, created)
	}
	taskID := created.ID

	// Budget rolled up from the project.
	var camp struct {
		Budget float64 `json:"budget"`
		State  string  `json:"state"`
	}
	status = doJSON(t, srv, http.MethodGet, "/api/v1/campaigns/"+campID, nil, &camp)
	if status != http.StatusOK {
		t.Fatalf("get campaign status = %d", status)
	}
	if camp.Budget != 400 {
		t.Fatalf("campaign budget = %v, want 400", camp.Budget)
	}

	var mut struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	status = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/transition", taskID), map[string]any{
		"state": "completed",
	}, &mut)
	if status != http.StatusOK || !mut.Success {
		t.Fatalf("transition task: status=%d result=%+v", status, mut)
	}

	// The sole task completing bubbles up to project and campaign.
	status = doJSON(t, srv, http.MethodGet, "/api/v1/campaigns/"+campID, nil, &camp)
	if status != http.StatusOK {
		t.Fatalf("get campaign status = %d", status)
	}
	if camp.State != "completed" {
		t.Fatalf("campaign state = %q, want completed", camp.State)
	}

	var audit struct {
		Items []struct {
			Action     string         `json:"action"`
			EntityKind string         `json:"entity_kind"`
			ActorID    string         `json:"actor_id"`
			Changes    map[string]any `json:"changes"`
		} `json:"items"`
	}
	status = doJSON(t, srv, http.MethodGet, "/api/v1/audit?entity_kind=task", nil, &audit)
	if status != http.StatusOK {
		t.Fatalf("audit status = %d", status)
	}
	if len(audit.Items) != 2 {
		t.Fatalf("task audit entries = %d, want 2 (created + state change)", len(audit.Items))
	}
	if audit.Items[0].Action != "state-changed" || audit.Items[0].ActorID != "alice" {
		t.Fatalf("unexpected audit head: %+v", audit.Items[0])
	}
}

func TestValidationErrorsSurfaceInEnvelope(t *testing.T) {
	srv := newTestServer(t)
	var created struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	status := doJSON(t, srv, http.MethodPost, "/api/v1/campaigns", map[string]any{"name": ""}, &created)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if created.Success || len(created.Errors) == 0 {
		t.Fatalf("expected validation errors, got %+v", created)
	}
}

func TestUpdateRejectsStateOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	var created struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	status := doJSON(t, srv, http.MethodPost, "/api/v1/campaigns", map[string]any{"name": "Spring Launch"}, &created)
	if status != http.StatusOK || !created.Success {
		t.Fatalf("create campaign: status=%d result=%+v", status, created)
	}
	var mut struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	status = doJSON(t, srv, http.MethodPatch, "/api/v1/campaigns/"+created.ID, map[string]any{"state": "active"}, &mut)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if mut.Success || len(mut.Errors) == 0 {
		t.Fatalf("state update accepted: %+v", mut)
	}
}

func TestDevLoginAndBearerAuth(t *testing.T) {
	srv := newTestServer(t)

	var login struct {
		Token string `json:"token"`
	}
	body, _ := json.Marshal(map[string]any{"actor_id": "bob"})
	resp, err := srv.Client().Post(srv.URL+"/api/v1/auth/dev/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("dev login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dev login status = %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("empty token")
	}

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp2, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp2.StatusCode)
	}
	var me struct {
		ActorID string `json:"actor_id"`
		Source  string `json:"source"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.ActorID != "bob" || me.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}
