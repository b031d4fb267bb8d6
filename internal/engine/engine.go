package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"launchpad/internal/domain"
	"launchpad/internal/engine/auth"
	"launchpad/internal/events"
	"launchpad/internal/repo"
)

// Runtimes and Architectures accepted for deployments.
var (
	Runtimes      = []string{"nodejs20.x", "nodejs22.x", "python3.12", "python3.13", "go1.x"}
	Architectures = []string{"x86_64", "arm64"}
)

// ValidationError marks a request the caller must fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Auth   auth.Service
	Events events.Writer
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Auth:   auth.Service{Repo: r},
		Events: events.Writer{},
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func ref(id, slug string, can domain.Can) domain.ResourceRef {
	return domain.ResourceRef{ID: id, Slug: slug, Can: can}
}

// readable computes the descriptor for the first target and fails unless it
// allows read.
func (e Engine) readable(ctx context.Context, actorID string, targets ...auth.Target) (domain.Can, error) {
	can, err := e.Auth.Descriptor(ctx, actorID, targets...)
	if err != nil {
		return domain.Can{}, err
	}
	if err := auth.Require(can, "read", targets[0]); err != nil {
		return domain.Can{}, err
	}
	return can, nil
}

func orgTarget(id string) auth.Target     { return auth.Target{Kind: "organization", ID: id} }
func projectTarget(id string) auth.Target { return auth.Target{Kind: "project", ID: id} }
func envTarget(id string) auth.Target     { return auth.Target{Kind: "environment", ID: id} }
func backendTarget(id string) auth.Target { return auth.Target{Kind: "cloud_backend", ID: id} }

// environmentTargets walks environment -> project -> organization.
func (e Engine) environmentTargets(ctx context.Context, env domain.Environment) ([]auth.Target, error) {
	p, err := e.Repo.GetProject(ctx, env.ProjectID)
	if err != nil {
		return nil, err
	}
	return []auth.Target{envTarget(env.ID), projectTarget(p.ID), orgTarget(p.OrganizationID)}, nil
}

func (e Engine) OrganizationBySlug(ctx context.Context, actorID, slug string) (domain.ResourceRef, error) {
	o, err := e.Repo.OrganizationBySlug(ctx, slug)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	can, err := e.readable(ctx, actorID, orgTarget(o.ID))
	if err != nil {
		return domain.ResourceRef{}, err
	}
	return ref(o.ID, o.Slug, can), nil
}

func (e Engine) ProjectBySlug(ctx context.Context, actorID, orgID, slug string) (domain.ResourceRef, error) {
	p, err := e.Repo.ProjectBySlug(ctx, orgID, slug)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	can, err := e.readable(ctx, actorID, projectTarget(p.ID), orgTarget(p.OrganizationID))
	if err != nil {
		return domain.ResourceRef{}, err
	}
	return ref(p.ID, p.Slug, can), nil
}

func (e Engine) EnvironmentBySlug(ctx context.Context, actorID, projectID, slug string) (domain.ResourceRef, error) {
	env, err := e.Repo.EnvironmentBySlug(ctx, projectID, slug)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	targets, err := e.environmentTargets(ctx, env)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	can, err := e.readable(ctx, actorID, targets...)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	return ref(env.ID, env.Slug, can), nil
}

func (e Engine) EnvironmentCloudBackendBySlug(ctx context.Context, actorID, envID, slug string) (domain.ResourceRef, error) {
	b, err := e.Repo.EnvironmentCloudBackendBySlug(ctx, envID, slug)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	env, err := e.Repo.GetEnvironment(ctx, envID)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	targets, err := e.environmentTargets(ctx, env)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	can, err := e.readable(ctx, actorID, append([]auth.Target{backendTarget(b.ID)}, targets...)...)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	return ref(b.ID, b.Slug, can), nil
}

func (e Engine) OrganizationCloudBackendBySlug(ctx context.Context, actorID, orgID, slug string) (domain.ResourceRef, error) {
	b, err := e.Repo.OrganizationCloudBackendBySlug(ctx, orgID, slug)
	if err != nil {
		return domain.ResourceRef{}, err
	}
	can, err := e.readable(ctx, actorID, backendTarget(b.ID), orgTarget(b.OrganizationID))
	if err != nil {
		return domain.ResourceRef{}, err
	}
	return ref(b.ID, b.Slug, can), nil
}

// ListOrganizations returns the organizations the actor can read.
func (e Engine) ListOrganizations(ctx context.Context, actorID string) ([]domain.Organization, error) {
	orgs, err := e.Repo.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Organization, 0, len(orgs))
	for _, o := range orgs {
		can, err := e.Auth.Descriptor(ctx, actorID, orgTarget(o.ID))
		if err != nil {
			return nil, err
		}
		if !can.Read {
			continue
		}
		o.Can = can
		res = append(res, o)
	}
	return res, nil
}

// ListEnvironments requires read on the project and returns the readable
// environments inside it.
func (e Engine) ListEnvironments(ctx context.Context, actorID, projectID string) ([]domain.Environment, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := e.readable(ctx, actorID, projectTarget(p.ID), orgTarget(p.OrganizationID)); err != nil {
		return nil, err
	}
	envs, err := e.Repo.ListEnvironments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Environment, 0, len(envs))
	for _, env := range envs {
		can, err := e.Auth.Descriptor(ctx, actorID, envTarget(env.ID), projectTarget(p.ID), orgTarget(p.OrganizationID))
		if err != nil {
			return nil, err
		}
		if !can.Read {
			continue
		}
		env.Can = can
		res = append(res, env)
	}
	return res, nil
}

// CreateDeployment records a pending deployment. The actor needs update on
// the environment.
func (e Engine) CreateDeployment(ctx context.Context, actorID, envID string, req domain.DeploymentRequest) (domain.Deployment, error) {
	if err := validateDeployment(req); err != nil {
		return domain.Deployment{}, err
	}
	env, err := e.Repo.GetEnvironment(ctx, envID)
	if err != nil {
		return domain.Deployment{}, err
	}
	targets, err := e.environmentTargets(ctx, env)
	if err != nil {
		return domain.Deployment{}, err
	}
	can, err := e.readable(ctx, actorID, targets...)
	if err != nil {
		return domain.Deployment{}, err
	}
	if err := auth.Require(can, "update", targets[0]); err != nil {
		return domain.Deployment{}, err
	}

	d := domain.Deployment{
		ID:            uuid.NewString(),
		EnvironmentID: env.ID,
		Status:        "pending",
		CLIVersion:    req.CLIVersion,
		Framework:     req.Framework,
		Runtime:       req.Runtime,
		Memory:        req.Memory,
		Timeout:       req.Timeout,
		Arch:          req.Arch,
		CreatedBy:     actorID,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Deployment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDeployment(ctx, tx, d); err != nil {
		return domain.Deployment{}, fmt.Errorf("insert deployment: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "deployment.create", "deployment", d.ID, actorID, events.Payload{
		"environment_id": d.EnvironmentID,
		"runtime":        d.Runtime,
		"arch":           d.Arch,
	}); err != nil {
		return domain.Deployment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Deployment{}, err
	}
	e.logger().Info("deployment created", "id", d.ID, "environment", env.Slug, "actor", actorID)
	return d, nil
}

// ListDeployments returns an environment's deployments, newest first. Read
// on the environment is enough.
func (e Engine) ListDeployments(ctx context.Context, actorID, envID string) ([]domain.Deployment, error) {
	env, err := e.Repo.GetEnvironment(ctx, envID)
	if err != nil {
		return nil, err
	}
	targets, err := e.environmentTargets(ctx, env)
	if err != nil {
		return nil, err
	}
	if _, err := e.readable(ctx, actorID, targets...); err != nil {
		return nil, err
	}
	return e.Repo.ListDeployments(ctx, env.ID)
}

func validateDeployment(req domain.DeploymentRequest) error {
	if err := req.Validate(); err != nil {
		return ValidationError{Field: "deployment", Message: err.Error()}
	}
	if !slices.Contains(Runtimes, req.Runtime) {
		return ValidationError{Field: "runtime", Message: fmt.Sprintf("%q is not one of %s", req.Runtime, strings.Join(Runtimes, ", "))}
	}
	if !slices.Contains(Architectures, req.Arch) {
		return ValidationError{Field: "arch", Message: fmt.Sprintf("%q is not one of %s", req.Arch, strings.Join(Architectures, ", "))}
	}
	return nil
}

// NewAPIKeySecret returns a fresh plaintext key.
func NewAPIKeySecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "lp_" + hex.EncodeToString(buf), nil
}

// CreateAPIKey issues a key for actorID and returns its plaintext once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.APIKey{}, "", ValidationError{Field: "actor_id", Message: "required"}
	}
	secret, err := NewAPIKeySecret()
	if err != nil {
		return domain.APIKey{}, "", err
	}
	now := e.now().UTC().Format(time.RFC3339)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("ensure actor: %w", err)
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "api_key.create", "api_key", key.ID, actorID, events.Payload{"name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// Authenticate maps a plaintext key to its actor.
func (e Engine) Authenticate(ctx context.Context, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("api key required")
	}
	key, err := e.Repo.APIKeyByHash(ctx, repo.HashAPIKey(secret))
	if err != nil {
		return "", err
	}
	if err := e.Repo.MarkAPIKeyUsed(ctx, key.ID, e.now().UTC().Format(time.RFC3339)); err != nil {
		e.logger().Warn("mark api key used", "key", key.ID, "err", err)
	}
	return key.ActorID, nil
}
