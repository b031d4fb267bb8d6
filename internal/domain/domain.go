package domain

import "fmt"

// Can is the permission descriptor attached to a resolved resource.
type Can struct {
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

// ResourceRef is one node of the authorization chain.
type ResourceRef struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Can  Can    `json:"can"`
}

type OrganizationResolution struct {
	Organization ResourceRef `json:"organization"`
}

type ProjectResolution struct {
	Organization ResourceRef `json:"organization"`
	Project      ResourceRef `json:"project"`
}

// OrganizationResolution returns the ancestor resolution.
func (r ProjectResolution) OrganizationResolution() OrganizationResolution {
	return OrganizationResolution{Organization: r.Organization}
}

type EnvironmentResolution struct {
	Organization ResourceRef `json:"organization"`
	Project      ResourceRef `json:"project"`
	Environment  ResourceRef `json:"environment"`
}

func (r EnvironmentResolution) ProjectResolution() ProjectResolution {
	return ProjectResolution{Organization: r.Organization, Project: r.Project}
}

type EnvironmentCloudBackendResolution struct {
	Organization ResourceRef `json:"organization"`
	Project      ResourceRef `json:"project"`
	Environment  ResourceRef `json:"environment"`
	CloudBackend ResourceRef `json:"cloud_backend"`
}

func (r EnvironmentCloudBackendResolution) EnvironmentResolution() EnvironmentResolution {
	return EnvironmentResolution{Organization: r.Organization, Project: r.Project, Environment: r.Environment}
}

// OrganizationCloudBackendResolution is a backend attached directly under an
// organization, with no project or environment in between.
type OrganizationCloudBackendResolution struct {
	Organization ResourceRef `json:"organization"`
	CloudBackend ResourceRef `json:"cloud_backend"`
}

func (r OrganizationCloudBackendResolution) OrganizationResolution() OrganizationResolution {
	return OrganizationResolution{Organization: r.Organization}
}

type Organization struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	Can  Can    `json:"can"`
}

type Project struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Slug           string `json:"slug"`
	Name           string `json:"name"`
}

type Environment struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Can       Can    `json:"can"`
}

// CloudBackend hangs off either an environment or an organization.
type CloudBackend struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	EnvironmentID  *string `json:"environment_id,omitempty"`
	Slug           string  `json:"slug"`
	Provider       string  `json:"provider"`
}

// DeploymentRequest describes a deployment to create. Memory is in MiB and
// Timeout in seconds.
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
	Status        string `json:"status" enum:"pending,ready,failed"`
	CLIVersion    string `json:"cli_version"`
	Framework     string `json:"framework,omitempty"`
	Runtime       string `json:"runtime"`
	Memory        int    `json:"memory"`
	Timeout       int    `json:"timeout"`
	Arch          string `json:"arch"`
	CreatedBy     string `json:"created_by"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Grant assigns a permission descriptor to an actor on one resource.
type Grant struct {
	ActorID      string `json:"actor_id"`
	ResourceKind string `json:"resource_kind" enum:"organization,project,environment,cloud_backend"`
	ResourceID   string `json:"resource_id"`
	Can          Can    `json:"can"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id"`
	Name       string `json:"name,omitempty"`
	KeyHash    string `json:"key_hash"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}

// Validate rejects requests the platform would refuse on shape alone.
func (r DeploymentRequest) Validate() error {
	switch {
	case r.CLIVersion == "":
		return fmt.Errorf("cli_version is required")
	case r.Runtime == "":
		return fmt.Errorf("runtime is required")
	case r.Arch == "":
		return fmt.Errorf("arch is required")
	case r.Memory <= 0:
		return fmt.Errorf("memory must be positive, got %d", r.Memory)
	case r.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %d", r.Timeout)
	}
	return nil
}
