package resolve

import (
	"context"
	"fmt"
	"strings"

	"launchpad/internal/domain"
)

// Path is a partial slug path as typed on the command line.
type Path struct {
	Organization string
	Project      string
	Environment  string
	CloudBackend string
	// OrganizationBackend resolves CloudBackend directly under the
	// organization, skipping project and environment.
	OrganizationBackend bool
}

// ParsePath splits "org[/project[/environment[/backend]]]".
func ParsePath(s string) (Path, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return Path{}, fmt.Errorf("organization slug required")
	}
	parts := strings.Split(s, "/")
	if len(parts) > 4 {
		return Path{}, fmt.Errorf("path %q has too many segments", s)
	}
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Path{}, fmt.Errorf("path %q has an empty segment at position %d", s, i+1)
		}
	}
	var p Path
	p.Organization = parts[0]
	if len(parts) > 1 {
		p.Project = parts[1]
	}
	if len(parts) > 2 {
		p.Environment = parts[2]
	}
	if len(parts) > 3 {
		p.CloudBackend = parts[3]
	}
	return p, nil
}

func (p Path) String() string {
	parts := []string{p.Organization}
	if p.OrganizationBackend {
		return strings.Join(append(parts, p.CloudBackend), "/")
	}
	for _, s := range []string{p.Project, p.Environment, p.CloudBackend} {
		if s == "" {
			break
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "/")
}

// Resolution is the outcome of resolving a Path. Value holds one of the
// domain resolution types; Target is its deepest reference.
type Resolution struct {
	Level  Level
	Target domain.ResourceRef
	Value  any
}

// Path resolves as deep as p reaches.
func (c Chain) Path(ctx context.Context, p Path) (Resolution, error) {
	switch {
	case p.OrganizationBackend:
		if p.Project != "" || p.Environment != "" {
			return Resolution{}, fmt.Errorf("organization backends cannot be combined with project or environment")
		}
		r, err := c.OrganizationCloudBackend(ctx, p.Organization, p.CloudBackend)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Level: LevelCloudBackend, Target: r.CloudBackend, Value: r}, nil
	case p.CloudBackend != "":
		r, err := c.EnvironmentCloudBackend(ctx, p.Organization, p.Project, p.Environment, p.CloudBackend)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Level: LevelCloudBackend, Target: r.CloudBackend, Value: r}, nil
	case p.Environment != "":
		r, err := c.Environment(ctx, p.Organization, p.Project, p.Environment)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Level: LevelEnvironment, Target: r.Environment, Value: r}, nil
	case p.Project != "":
		r, err := c.Project(ctx, p.Organization, p.Project)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Level: LevelProject, Target: r.Project, Value: r}, nil
	default:
		r, err := c.Organization(ctx, p.Organization)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Level: LevelOrganization, Target: r.Organization, Value: r}, nil
	}
}

// RequireUpdate checks that ref may be modified by the caller.
func RequireUpdate(level Level, ref domain.ResourceRef) error {
	if !ref.Can.Update {
		return &ForbiddenError{Level: level, Slug: ref.Slug, Permission: "update"}
	}
	return nil
}

// RequireDelete checks that ref may be deleted by the caller.
func RequireDelete(level Level, ref domain.ResourceRef) error {
	if !ref.Can.Delete {
		return &ForbiddenError{Level: level, Slug: ref.Slug, Permission: "delete"}
	}
	return nil
}

// LevelRef pairs a resolved reference with its level.
type LevelRef struct {
	Level Level
	Ref   domain.ResourceRef
}

// Levels lists every reference in the resolution, outermost first.
func (r Resolution) Levels() []LevelRef {
	switch v := r.Value.(type) {
	case domain.OrganizationResolution:
		return []LevelRef{{LevelOrganization, v.Organization}}
	case domain.ProjectResolution:
		return []LevelRef{{LevelOrganization, v.Organization}, {LevelProject, v.Project}}
	case domain.EnvironmentResolution:
		return []LevelRef{{LevelOrganization, v.Organization}, {LevelProject, v.Project}, {LevelEnvironment, v.Environment}}
	case domain.EnvironmentCloudBackendResolution:
		return []LevelRef{
			{LevelOrganization, v.Organization},
			{LevelProject, v.Project},
			{LevelEnvironment, v.Environment},
			{LevelCloudBackend, v.CloudBackend},
		}
	case domain.OrganizationCloudBackendResolution:
		return []LevelRef{{LevelOrganization, v.Organization}, {LevelCloudBackend, v.CloudBackend}}
	}
	return nil
}
