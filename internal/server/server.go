package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/engine/auth"
	"launchpad/internal/repo"
)

// Version is reported in the OpenAPI document.
const Version = "0.3.0"

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

// apiError is the error envelope clients parse into {title, message}.
type apiError struct {
	status  int
	Title   string `json:"title" example:"Forbidden"`
	Message string `json:"message" example:"permission update required on environment 0b9c"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string) huma.StatusError {
	return &apiError{status: status, Title: http.StatusText(status), Message: message}
}

// New returns an HTTP handler exposing the platform API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, joinDetails(msg, errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newAPIError(status, joinDetails(msg, errs))
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine))
	hcfg := huma.DefaultConfig("Launchpad API", Version)
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{engine: cfg.Engine, logger: logger}
	registerDocs(router, basePath)
	registerOpenAPI(router, api, basePath)
	registerHealth(group)
	registerWhoAmI(group)
	registerOrganizations(group, h)
	registerEnvironments(group, h)
	registerDeployments(group, h)
	registerAPIKeys(group, h)
	return router, nil
}

func joinDetails(msg string, errs []error) string {
	if len(errs) == 0 {
		return msg
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			parts = append(parts, e.Error())
		}
	}
	if len(parts) == 0 {
		return msg
	}
	return msg + ": " + strings.Join(parts, "; ")
}

type handlers struct {
	engine engine.Engine
	logger *slog.Logger
}

// handleError maps engine errors to the envelope.
func (h handlers) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, err.Error())
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "resource not found")
	}
	h.logger.Error("request failed", "error", err)
	return newAPIError(http.StatusInternalServerError, "internal error")
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", r.Header.Get("X-Request-Id"),
			)
		})
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

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
}

func registerWhoAmI(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/whoami",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		actor, err := actorIDFromContext(ctx)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ActorID: actor}}, nil
	})
}

type OrganizationList struct {
	Items []domain.Organization `json:"items"`
}

type EnvironmentList struct {
	Items []domain.Environment `json:"items"`
}

type refOutput struct {
	Body domain.ResourceRef `json:"body"`
}

func lookupOperation(id, route, summary string) huma.Operation {
	return huma.Operation{
		OperationID: id,
		Method:      http.MethodGet,
		Path:        route,
		Summary:     summary,
		Tags:        []string{"lookup"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}
}

func (h handlers) respondRef(ref domain.ResourceRef, err error) (*refOutput, error) {
	if err != nil {
		return nil, h.handleError(err)
	}
	return &refOutput{Body: ref}, nil
}

func registerOrganizations(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-organizations",
		Method:      http.MethodGet,
		Path:        "/organizations",
		Summary:     "List readable organizations",
		Tags:        []string{"organizations"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body OrganizationList `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		orgs, err := h.engine.ListOrganizations(ctx, actor)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body OrganizationList `json:"body"`
		}{Body: OrganizationList{Items: orgs}}, nil
	})

	huma.Register(api, lookupOperation("organization-by-slug", "/organizations/slug/{slug}", "Resolve an organization slug"),
		func(ctx context.Context, input *struct {
			Slug string `path:"slug"`
		}) (*refOutput, error) {
			actor, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			return h.respondRef(h.engine.OrganizationBySlug(ctx, actor, input.Slug))
		})

	huma.Register(api, lookupOperation("project-by-slug", "/organizations/{org_id}/projects/slug/{slug}", "Resolve a project slug"),
		func(ctx context.Context, input *struct {
			OrgID string `path:"org_id"`
			Slug  string `path:"slug"`
		}) (*refOutput, error) {
			actor, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			return h.respondRef(h.engine.ProjectBySlug(ctx, actor, input.OrgID, input.Slug))
		})

	huma.Register(api, lookupOperation("organization-cloud-backend-by-slug", "/organizations/{org_id}/cloud-backends/slug/{slug}", "Resolve an organization cloud backend slug"),
		func(ctx context.Context, input *struct {
			OrgID string `path:"org_id"`
			Slug  string `path:"slug"`
		}) (*refOutput, error) {
			actor, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			return h.respondRef(h.engine.OrganizationCloudBackendBySlug(ctx, actor, input.OrgID, input.Slug))
		})
}

func registerEnvironments(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-environments",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/environments",
		Summary:     "List readable environments of a project",
		Tags:        []string{"environments"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body EnvironmentList `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		envs, err := h.engine.ListEnvironments(ctx, actor, input.ProjectID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body EnvironmentList `json:"body"`
		}{Body: EnvironmentList{Items: envs}}, nil
	})

	huma.Register(api, lookupOperation("environment-by-slug", "/projects/{project_id}/environments/slug/{slug}", "Resolve an environment slug"),
		func(ctx context.Context, input *struct {
			ProjectID string `path:"project_id"`
			Slug      string `path:"slug"`
		}) (*refOutput, error) {
			actor, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			return h.respondRef(h.engine.EnvironmentBySlug(ctx, actor, input.ProjectID, input.Slug))
		})

	huma.Register(api, lookupOperation("environment-cloud-backend-by-slug", "/environments/{environment_id}/cloud-backends/slug/{slug}", "Resolve an environment cloud backend slug"),
		func(ctx context.Context, input *struct {
			EnvironmentID string `path:"environment_id"`
			Slug          string `path:"slug"`
		}) (*refOutput, error) {
			actor, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			return h.respondRef(h.engine.EnvironmentCloudBackendBySlug(ctx, actor, input.EnvironmentID, input.Slug))
		})
}

type DeploymentList struct {
	Items []domain.Deployment `json:"items"`
}

func registerDeployments(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-deployments",
		Method:      http.MethodGet,
		Path:        "/environments/{environment_id}/deployments",
		Summary:     "List deployments of an environment",
		Tags:        []string{"deployments"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EnvironmentID string `path:"environment_id"`
	}) (*struct {
		Body DeploymentList `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := h.engine.ListDeployments(ctx, actor, input.EnvironmentID)
		if err != nil {
			return nil, h.handleError(err)
		}
		if items == nil {
			items = []domain.Deployment{}
		}
		return &struct {
			Body DeploymentList `json:"body"`
		}{Body: DeploymentList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-deployment",
		Method:      http.MethodPost,
		Path:        "/environments/{environment_id}/deployments",
		Summary:     "Create a deployment",
		Tags:        []string{"deployments"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EnvironmentID string                   `path:"environment_id"`
		Body          domain.DeploymentRequest `json:"body"`
	}) (*struct {
		Body domain.Deployment `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := h.engine.CreateDeployment(ctx, actor, input.EnvironmentID, input.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Deployment `json:"body"`
		}{Body: d}, nil
	})
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateAPIKeyResponse struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Key  string `json:"key"`
}

func registerAPIKeys(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "create-api-key",
		Method:      http.MethodPost,
		Path:        "/api-keys",
		Summary:     "Issue an API key for the caller",
		Tags:        []string{"api-keys"},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, secret, err := h.engine.CreateAPIKey(ctx, actor, input.Body.Name)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{ID: key.ID, Name: key.Name, Key: secret}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{Type: "apiKey", In: "header", Name: "X-Api-Key"}
	security := []map[string][]string{{"bearerAuth": {}}, {"apiKeyAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>Launchpad API Emulator</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => { SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' }); };
    </script>
  </body>
</html>`, specURL)
}
