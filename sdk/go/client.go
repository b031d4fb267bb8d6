package launchpadsdk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the hosted platform API.
const DefaultBaseURL = "https://api.launchpad.dev"

// Client is a minimal Launchpad platform API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	UserAgent   string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 30 * time.Second,
	}
}

// Can mirrors the platform permission descriptor.
type Can struct {
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

// ResourceRef is returned by every slug lookup.
type ResourceRef struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Can  Can    `json:"can"`
}

type Organization struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	Can  Can    `json:"can"`
}

type Environment struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Can       Can    `json:"can"`
}

type DeploymentRequest struct {
	CLIVersion string `json:"cli_version"`
	Framework  string `json:"framework,omitempty"`
	Runtime    string `json:"runtime"`
	Memory     int    `json:"memory"`
	Timeout    int    `json:"timeout"`
	Arch       string `json:"arch"`
}

type Deployment struct {
	ID            string `json:"id"`
	EnvironmentID string `json:"environment_id"`
	Status        string `json:"status"`
	CLIVersion    string `json:"cli_version"`
	Framework     string `json:"framework,omitempty"`
	Runtime       string `json:"runtime"`
	Memory        int    `json:"memory"`
	Timeout       int    `json:"timeout"`
	Arch          string `json:"arch"`
	CreatedBy     string `json:"created_by"`
	CreatedAt     string `json:"created_at"`
}

type Identity struct {
	ActorID string `json:"actor_id"`
}

// CreatedAPIKey carries the plaintext key; it is only returned once.
type CreatedAPIKey struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Key  string `json:"key"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) GetStatus() int { return e.StatusCode }

// WhoAmI returns the actor behind the configured credentials.
func (c *Client) WhoAmI(ctx context.Context) (Identity, error) {
	var resp Identity
	err := c.do(ctx, http.MethodGet, "v1/whoami", nil, &resp)
	return resp, err
}

// ListOrganizations returns organizations readable by the caller.
func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var resp struct {
		Items []Organization `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v1/organizations", nil, &resp)
	return resp.Items, err
}

// ListEnvironments returns the environments of a project.
func (c *Client) ListEnvironments(ctx context.Context, projectID string) ([]Environment, error) {
	var resp struct {
		Items []Environment `json:"items"`
	}
	endpoint := fmt.Sprintf("v1/projects/%s/environments", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// OrganizationBySlug looks up an organization.
func (c *Client) OrganizationBySlug(ctx context.Context, slug string) (ResourceRef, error) {
	return c.lookup(ctx, fmt.Sprintf("v1/organizations/slug/%s", url.PathEscape(slug)))
}

// ProjectBySlug looks up a project inside an organization.
func (c *Client) ProjectBySlug(ctx context.Context, orgID, slug string) (ResourceRef, error) {
	return c.lookup(ctx, fmt.Sprintf("v1/organizations/%s/projects/slug/%s", url.PathEscape(orgID), url.PathEscape(slug)))
}

// EnvironmentBySlug looks up an environment inside a project.
func (c *Client) EnvironmentBySlug(ctx context.Context, projectID, slug string) (ResourceRef, error) {
	return c.lookup(ctx, fmt.Sprintf("v1/projects/%s/environments/slug/%s", url.PathEscape(projectID), url.PathEscape(slug)))
}

// EnvironmentCloudBackendBySlug looks up a backend attached to an environment.
func (c *Client) EnvironmentCloudBackendBySlug(ctx context.Context, envID, slug string) (ResourceRef, error) {
	return c.lookup(ctx, fmt.Sprintf("v1/environments/%s/cloud-backends/slug/%s", url.PathEscape(envID), url.PathEscape(slug)))
}

// OrganizationCloudBackendBySlug looks up a backend attached to an organization.
func (c *Client) OrganizationCloudBackendBySlug(ctx context.Context, orgID, slug string) (ResourceRef, error) {
	return c.lookup(ctx, fmt.Sprintf("v1/organizations/%s/cloud-backends/slug/%s", url.PathEscape(orgID), url.PathEscape(slug)))
}

func (c *Client) lookup(ctx context.Context, endpoint string) (ResourceRef, error) {
	var resp ResourceRef
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateDeployment creates a deployment in an environment.
func (c *Client) CreateDeployment(ctx context.Context, envID string, req DeploymentRequest) (Deployment, error) {
	var resp Deployment
	endpoint := fmt.Sprintf("v1/environments/%s/deployments", url.PathEscape(envID))
	err := c.do(ctx, http.MethodPost, endpoint, req, &resp)
	return resp, err
}

// ListDeployments returns an environment's deployments, newest first.
func (c *Client) ListDeployments(ctx context.Context, envID string) ([]Deployment, error) {
	var resp struct {
		Items []Deployment `json:"items"`
	}
	endpoint := fmt.Sprintf("v1/environments/%s/deployments", url.PathEscape(envID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// CreateAPIKey issues a new key for the calling actor.
func (c *Client) CreateAPIKey(ctx context.Context, name string) (CreatedAPIKey, error) {
	var resp CreatedAPIKey
	err := c.do(ctx, http.MethodPost, "v1/api-keys", map[string]any{"name": name}, &resp)
	return resp, err
}

// InvokeRequest is the HTTP request forwarded to a deployed function.
type InvokeRequest struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
}

// InvokeResult is a completed invocation. Body is already decoded.
type InvokeResult struct {
	StatusCode        int
	Headers           map[string]string
	MultiValueHeaders map[string][]string
	Body              []byte
}

type invokeEnvelope struct {
	Method            string              `json:"method"`
	Path              string              `json:"path"`
	Query             map[string][]string `json:"query,omitempty"`
	MultiValueHeaders map[string][]string `json:"multiValueHeaders,omitempty"`
	Body              string              `json:"body,omitempty"`
	IsBase64Encoded   bool                `json:"isBase64Encoded"`
}

type resultEnvelope struct {
	StatusCode        int                 `json:"statusCode"`
	Headers           map[string]string   `json:"headers,omitempty"`
	MultiValueHeaders map[string][]string `json:"multiValueHeaders,omitempty"`
	Body              *string             `json:"body,omitempty"`
	IsBase64Encoded   bool                `json:"isBase64Encoded,omitempty"`
}

// InvokeEnvironment invokes the deployment currently live in an environment.
// Invocation failures come back as *APIError.
func (c *Client) InvokeEnvironment(ctx context.Context, envID string, req InvokeRequest) (InvokeResult, error) {
	return c.invoke(ctx, fmt.Sprintf("v1/environments/%s/invoke", url.PathEscape(envID)), req)
}

// InvokeCloudBackend invokes a cloud backend directly.
func (c *Client) InvokeCloudBackend(ctx context.Context, backendID string, req InvokeRequest) (InvokeResult, error) {
	return c.invoke(ctx, fmt.Sprintf("v1/cloud-backends/%s/invoke", url.PathEscape(backendID)), req)
}

func (c *Client) invoke(ctx context.Context, endpoint string, req InvokeRequest) (InvokeResult, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	body := invokeEnvelope{
		Method:            method,
		Path:              path,
		Query:             req.Query,
		MultiValueHeaders: req.Headers,
	}
	if len(req.Body) > 0 {
		body.Body = base64.StdEncoding.EncodeToString(req.Body)
		body.IsBase64Encoded = true
	}
	var env resultEnvelope
	if err := c.do(ctx, http.MethodPost, endpoint, body, &env); err != nil {
		return InvokeResult{}, err
	}
	res := InvokeResult{
		StatusCode:        env.StatusCode,
		Headers:           env.Headers,
		MultiValueHeaders: env.MultiValueHeaders,
	}
	if env.Body != nil {
		if env.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(*env.Body)
			if err != nil {
				return InvokeResult{}, fmt.Errorf("decode invocation body: %w", err)
			}
			res.Body = decoded
		} else {
			res.Body = []byte(*env.Body)
		}
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
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
