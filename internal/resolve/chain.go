// Package resolve turns organization/project/environment/cloud backend slugs
// into resource references carrying the caller's permissions.
//
// Resolution is strictly top-down. Each level is looked up against the
// reference resolved one level above it, and the chain stops at the first
// slug that is missing or not readable. A failed resolution never returns a
// partial result.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"launchpad/internal/domain"
)

// Lookup fetches a single level. Implementations report missing slugs with
// ErrNotFound (or an error whose GetStatus returns 404).
type Lookup interface {
	Organization(ctx context.Context, slug string) (domain.ResourceRef, error)
	Project(ctx context.Context, org domain.ResourceRef, slug string) (domain.ResourceRef, error)
	Environment(ctx context.Context, project domain.ResourceRef, slug string) (domain.ResourceRef, error)
	EnvironmentCloudBackend(ctx context.Context, env domain.ResourceRef, slug string) (domain.ResourceRef, error)
	OrganizationCloudBackend(ctx context.Context, org domain.ResourceRef, slug string) (domain.ResourceRef, error)
}

// Chain resolves slug paths one level at a time, stopping at the first
// level the caller cannot read.
type Chain struct {
	Lookup Lookup
	Logger *slog.Logger
}

// New returns a Chain backed by l that logs to slog.Default.
func New(l Lookup) Chain {
	return Chain{Lookup: l}
}

func (c Chain) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// step runs one lookup and enforces read access on the result.
func (c Chain) step(ctx context.Context, level Level, slug string, fetch func() (domain.ResourceRef, error)) (domain.ResourceRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.ResourceRef{}, err
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.ResourceRef{}, fmt.Errorf("%s slug required", level)
	}
	ref, err := fetch()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ResourceRef{}, ctxErr
		}
		return domain.ResourceRef{}, lookupFailure(level, slug, err)
	}
	if !ref.Can.Read {
		c.logger().Debug("resolution denied", "level", string(level), "slug", slug)
		return domain.ResourceRef{}, &ForbiddenError{Level: level, Slug: slug, Permission: "read"}
	}
	c.logger().Debug("resolved", "level", string(level), "slug", slug, "id", ref.ID)
	return ref, nil
}

// Organization resolves an organization slug.
func (c Chain) Organization(ctx context.Context, orgSlug string) (domain.OrganizationResolution, error) {
	org, err := c.step(ctx, LevelOrganization, orgSlug, func() (domain.ResourceRef, error) {
		return c.Lookup.Organization(ctx, strings.TrimSpace(orgSlug))
	})
	if err != nil {
		return domain.OrganizationResolution{}, err
	}
	return domain.OrganizationResolution{Organization: org}, nil
}

// Project resolves org/project.
func (c Chain) Project(ctx context.Context, orgSlug, projectSlug string) (domain.ProjectResolution, error) {
	parent, err := c.Organization(ctx, orgSlug)
	if err != nil {
		return domain.ProjectResolution{}, err
	}
	project, err := c.step(ctx, LevelProject, projectSlug, func() (domain.ResourceRef, error) {
		return c.Lookup.Project(ctx, parent.Organization, strings.TrimSpace(projectSlug))
	})
	if err != nil {
		return domain.ProjectResolution{}, err
	}
	return domain.ProjectResolution{Organization: parent.Organization, Project: project}, nil
}

// Environment resolves org/project/environment.
func (c Chain) Environment(ctx context.Context, orgSlug, projectSlug, envSlug string) (domain.EnvironmentResolution, error) {
	parent, err := c.Project(ctx, orgSlug, projectSlug)
	if err != nil {
		return domain.EnvironmentResolution{}, err
	}
	env, err := c.step(ctx, LevelEnvironment, envSlug, func() (domain.ResourceRef, error) {
		return c.Lookup.Environment(ctx, parent.Project, strings.TrimSpace(envSlug))
	})
	if err != nil {
		return domain.EnvironmentResolution{}, err
	}
	return domain.EnvironmentResolution{
		Organization: parent.Organization,
		Project:      parent.Project,
		Environment:  env,
	}, nil
}

// EnvironmentCloudBackend resolves a cloud backend attached to an environment.
func (c Chain) EnvironmentCloudBackend(ctx context.Context, orgSlug, projectSlug, envSlug, backendSlug string) (domain.EnvironmentCloudBackendResolution, error) {
	parent, err := c.Environment(ctx, orgSlug, projectSlug, envSlug)
	if err != nil {
		return domain.EnvironmentCloudBackendResolution{}, err
	}
	backend, err := c.step(ctx, LevelCloudBackend, backendSlug, func() (domain.ResourceRef, error) {
		return c.Lookup.EnvironmentCloudBackend(ctx, parent.Environment, strings.TrimSpace(backendSlug))
	})
	if err != nil {
		return domain.EnvironmentCloudBackendResolution{}, err
	}
	return domain.EnvironmentCloudBackendResolution{
		Organization: parent.Organization,
		Project:      parent.Project,
		Environment:  parent.Environment,
		CloudBackend: backend,
	}, nil
}

// OrganizationCloudBackend resolves a cloud backend owned by an organization.
func (c Chain) OrganizationCloudBackend(ctx context.Context, orgSlug, backendSlug string) (domain.OrganizationCloudBackendResolution, error) {
	parent, err := c.Organization(ctx, orgSlug)
	if err != nil {
		return domain.OrganizationCloudBackendResolution{}, err
	}
	backend, err := c.step(ctx, LevelCloudBackend, backendSlug, func() (domain.ResourceRef, error) {
		return c.Lookup.OrganizationCloudBackend(ctx, parent.Organization, strings.TrimSpace(backendSlug))
	})
	if err != nil {
		return domain.OrganizationCloudBackendResolution{}, err
	}
	return domain.OrganizationCloudBackendResolution{Organization: parent.Organization, CloudBackend: backend}, nil
}
