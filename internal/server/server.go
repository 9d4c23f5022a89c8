package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"campflow/internal/directory"
	"campflow/internal/domain"
	"campflow/internal/lifecycle"
	"campflow/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Coordinator lifecycle.Coordinator
	Directory   *directory.SQL
	BasePath    string
	Auth        AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"campaign not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Campflow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Coordinator.Store))
	hcfg := huma.DefaultConfig("Campflow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCampaigns(group, cfg.Coordinator)
	registerProjects(group, cfg.Coordinator)
	registerTasks(group, cfg.Coordinator)
	registerUsers(group, cfg.Directory)
	registerAudit(group, cfg.Coordinator)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, directory.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCampaigns(api huma.API, co lifecycle.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "create-campaign",
		Method:      http.MethodPost,
		Path:        "/campaigns",
		Summary:     "Create campaign",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateCampaignRequest `json:"body"`
	}) (*struct {
		Body CreateResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		camp := domain.Campaign{
			Name:            input.Body.Name,
			Description:     stringOrEmpty(input.Body.Description),
			StartDate:       stringOrEmpty(input.Body.StartDate),
			EndDate:         stringOrEmpty(input.Body.EndDate),
			OwnerID:         stringOrEmpty(input.Body.OwnerID),
			EstimatedBudget: input.Body.EstimatedBudget,
			Priority:        input.Body.Priority,
		}
		if input.Body.Budget != nil {
			camp.Budget = *input.Body.Budget
		}
		res, err := co.CreateCampaign(ctx, camp, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateResponse `json:"body"`
		}{Body: createResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Campaign `json:"body"`
	}, error) {
		items, err := co.Store.ListCampaigns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Campaign{}
		}
		return &struct {
			Body []domain.Campaign `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-campaign",
		Method:      http.MethodGet,
		Path:        "/campaigns/{id}",
		Summary:     "Get campaign",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		c, err := co.Store.GetCampaign(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-campaign",
		Method:      http.MethodPatch,
		Path:        "/campaigns/{id}",
		Summary:     "Update campaign fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body map[string]any `json:"body"`
	}) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := co.UpdateFields(ctx, domain.KindCampaign, input.ID, input.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MutationResponse `json:"body"`
		}{Body: updateResponse(res)}, nil
	})

	registerTransition(api, co, domain.KindCampaign, "/campaigns/{id}/transition")
	registerUnarchive(api, co, domain.KindCampaign, "/campaigns/{id}/unarchive")

	huma.Register(api, huma.Operation{
		OperationID: "rollup-campaign-budget",
		Method:      http.MethodPost,
		Path:        "/campaigns/{id}/rollup",
		Summary:     "Recompute campaign budget from project budgets",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := co.RollUpBudget(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		c, err := co.Store.GetCampaign(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-campaign-projects",
		Method:      http.MethodGet,
		Path:        "/campaigns/{id}/projects",
		Summary:     "List a campaign's projects",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		if _, err := co.Store.GetCampaign(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := co.Store.ListProjects(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-project",
		Method:      http.MethodPost,
		Path:        "/campaigns/{id}/projects",
		Summary:     "Create project under a campaign",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body CreateResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		proj := domain.Project{
			Name:        input.Body.Name,
			Description: stringOrEmpty(input.Body.Description),
			StartDate:   stringOrEmpty(input.Body.StartDate),
			EndDate:     stringOrEmpty(input.Body.EndDate),
			Priority:    input.Body.Priority,
		}
		if input.Body.Budget != nil {
			proj.Budget = *input.Body.Budget
		}
		res, err := co.CreateProject(ctx, input.ID, proj, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateResponse `json:"body"`
		}{Body: createResponse(res)}, nil
	})
}

func registerProjects(api huma.API, co lifecycle.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := co.Store.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body map[string]any `json:"body"`
	}) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := co.UpdateFields(ctx, domain.KindProject, input.ID, input.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MutationResponse `json:"body"`
		}{Body: updateResponse(res)}, nil
	})

	registerTransition(api, co, domain.KindProject, "/projects/{id}/transition")
	registerUnarchive(api, co, domain.KindProject, "/projects/{id}/unarchive")

	huma.Register(api, huma.Operation{
		OperationID: "list-project-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/tasks",
		Summary:     "List a project's tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, err := co.Store.GetProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := co.Store.ListTasks(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Task{}
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-task",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/tasks",
		Summary:     "Create task under a project",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body CreateResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task := domain.Task{
			Name:            input.Body.Name,
			Description:     stringOrEmpty(input.Body.Description),
			AssigneeID:      input.Body.AssigneeID,
			DueDate:         stringOrEmpty(input.Body.DueDate),
			EstimatedEffort: input.Body.EstimatedEffort,
			Priority:        input.Body.Priority,
		}
		res, err := co.CreateTask(ctx, input.ID, task, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateResponse `json:"body"`
		}{Body: createResponse(res)}, nil
	})
}

func registerTasks(api huma.API, co lifecycle.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := co.Store.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body map[string]any `json:"body"`
	}) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := co.UpdateFields(ctx, domain.KindTask, input.ID, input.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MutationResponse `json:"body"`
		}{Body: updateResponse(res)}, nil
	})

	registerTransition(api, co, domain.KindTask, "/tasks/{id}/transition")
}

func registerTransition(api huma.API, co lifecycle.Coordinator, kind, route string) {
	huma.Register(api, huma.Operation{
		OperationID: "transition-" + kind,
		Method:      http.MethodPost,
		Path:        route,
		Summary:     "Change " + kind + " state",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TransitionRequest `json:"body"`
	}) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.State == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "state is required", nil)
		}
		res, err := co.TransitionState(ctx, kind, input.ID, input.Body.State, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MutationResponse `json:"body"`
		}{Body: transitionResponse(res)}, nil
	})
}

func registerUnarchive(api huma.API, co lifecycle.Coordinator, kind, route string) {
	huma.Register(api, huma.Operation{
		OperationID: "unarchive-" + kind,
		Method:      http.MethodPost,
		Path:        route,
		Summary:     "Unarchive " + kind,
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := co.Unarchive(ctx, kind, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MutationResponse `json:"body"`
		}{Body: transitionResponse(res)}, nil
	})
}

func registerUsers(api huma.API, dir *directory.SQL) {
	huma.Register(api, huma.Operation{
		OperationID: "create-user",
		Method:      http.MethodPost,
		Path:        "/users",
		Summary:     "Create or reactivate user",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.ID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		u, err := dir.EnsureUser(ctx, domain.User{ID: input.Body.ID, Name: input.Body.Name, Active: true})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		items, err := dir.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.User{}
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := dir.GetUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-active",
		Method:      http.MethodPatch,
		Path:        "/users/{id}",
		Summary:     "Activate or deactivate user",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Active bool `json:"active"`
		} `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if err := dir.SetActive(ctx, input.ID, input.Body.Active); err != nil {
			return nil, handleError(err)
		}
		u, err := dir.GetUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-user-segment",
		Method:      http.MethodPost,
		Path:        "/users/{id}/segments",
		Summary:     "Add user to a segment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Segment string `json:"segment"`
		} `json:"body"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Segment) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "segment is required", nil)
		}
		if _, err := dir.GetUser(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		if err := dir.AddSegment(ctx, input.ID, input.Body.Segment); err != nil {
			return nil, handleError(err)
		}
		segments, err := dir.UserSegments(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: nonNilSlice(segments)}, nil
	})
}

func registerAudit(api huma.API, co lifecycle.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit entries",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Action     string `query:"action"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		ActorID    string `query:"actor_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedAudit `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursor, err := parseAuditCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		entries, err := co.Store.ListAudit(ctx, store.AuditFilters{
			Action:     input.Action,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			ActorID:    input.ActorID,
			Limit:      limit + 1,
			Cursor:     cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAudit{Items: []AuditEntryResponse{}}
		if len(entries) > limit {
			resp.NextCursor = strconv.FormatInt(entries[limit-1].ID, 10)
			entries = entries[:limit]
		}
		for _, e := range entries {
			resp.Items = append(resp.Items, auditResponse(e))
		}
		return &struct {
			Body paginatedAudit `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ActorID: principal.ActorID, Source: principal.Source}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Campflow API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseAuditCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	return strconv.ParseInt(cursor, 10, 64)
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
