package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Seed is the fixture loaded into the local platform emulator.
type Seed struct {
	Organizations []SeedOrganization `yaml:"organizations" json:"organizations"`
	Actors        []SeedActor        `yaml:"actors" json:"actors"`
	Grants        []SeedGrant        `yaml:"grants" json:"grants"`
}

type SeedOrganization struct {
	Slug          string             `yaml:"slug" json:"slug"`
	Name          string             `yaml:"name" json:"name"`
	Projects      []SeedProject      `yaml:"projects" json:"projects"`
	CloudBackends []SeedCloudBackend `yaml:"cloud_backends" json:"cloud_backends"`
}

type SeedProject struct {
	Slug         string            `yaml:"slug" json:"slug"`
	Name         string            `yaml:"name" json:"name"`
	Environments []SeedEnvironment `yaml:"environments" json:"environments"`
}

type SeedEnvironment struct {
	Slug          string             `yaml:"slug" json:"slug"`
	Name          string             `yaml:"name" json:"name"`
	CloudBackends []SeedCloudBackend `yaml:"cloud_backends" json:"cloud_backends"`
}

type SeedCloudBackend struct {
	Slug     string `yaml:"slug" json:"slug"`
	Provider string `yaml:"provider" json:"provider"`
}

type SeedActor struct {
	ID      string   `yaml:"id" json:"id"`
	APIKeys []string `yaml:"api_keys" json:"api_keys"`
}

// SeedGrant targets the resource named by its slugs. A grant with
// Organization and CloudBackend but no Project targets an organization
// backend.
type SeedGrant struct {
	Actor        string   `yaml:"actor" json:"actor"`
	Organization string   `yaml:"organization" json:"organization"`
	Project      string   `yaml:"project,omitempty" json:"project,omitempty"`
	Environment  string   `yaml:"environment,omitempty" json:"environment,omitempty"`
	CloudBackend string   `yaml:"cloud_backend,omitempty" json:"cloud_backend,omitempty"`
	Can          []string `yaml:"can" json:"can"`
}

// LoadSeed reads a seed fixture. Files ending in .json or .jsonc may carry
// comments and trailing commas; anything else is parsed as YAML.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed Seed
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &seed); err != nil {
			return nil, fmt.Errorf("invalid seed json %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return nil, fmt.Errorf("invalid seed yaml %s: %w", path, err)
		}
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks slugs are present and unique per parent and that grants
// carry known permissions.
func (s *Seed) Validate() error {
	orgs := map[string]bool{}
	for _, o := range s.Organizations {
		if o.Slug == "" {
			return fmt.Errorf("seed organization has empty slug")
		}
		if orgs[o.Slug] {
			return fmt.Errorf("seed organization %s defined twice", o.Slug)
		}
		orgs[o.Slug] = true
		projects := map[string]bool{}
		for _, p := range o.Projects {
			if p.Slug == "" {
				return fmt.Errorf("seed organization %s has project with empty slug", o.Slug)
			}
			if projects[p.Slug] {
				return fmt.Errorf("seed project %s/%s defined twice", o.Slug, p.Slug)
			}
			projects[p.Slug] = true
			envs := map[string]bool{}
			for _, e := range p.Environments {
				if e.Slug == "" {
					return fmt.Errorf("seed project %s/%s has environment with empty slug", o.Slug, p.Slug)
				}
				if envs[e.Slug] {
					return fmt.Errorf("seed environment %s/%s/%s defined twice", o.Slug, p.Slug, e.Slug)
				}
				envs[e.Slug] = true
				if err := validateBackends(e.CloudBackends, o.Slug+"/"+p.Slug+"/"+e.Slug); err != nil {
					return err
				}
			}
		}
		if err := validateBackends(o.CloudBackends, o.Slug); err != nil {
			return err
		}
	}
	actors := map[string]bool{}
	for _, a := range s.Actors {
		if a.ID == "" {
			return fmt.Errorf("seed actor has empty id")
		}
		actors[a.ID] = true
	}
	for i, g := range s.Grants {
		if g.Actor == "" || g.Organization == "" {
			return fmt.Errorf("seed grant %d requires actor and organization", i)
		}
		if !actors[g.Actor] {
			return fmt.Errorf("seed grant %d references unknown actor %s", i, g.Actor)
		}
		if !orgs[g.Organization] {
			return fmt.Errorf("seed grant %d references unknown organization %s", i, g.Organization)
		}
		if g.Environment != "" && g.Project == "" {
			return fmt.Errorf("seed grant %d names an environment without a project", i)
		}
		if g.CloudBackend != "" && g.Project != "" && g.Environment == "" {
			return fmt.Errorf("seed grant %d names a backend under a project without an environment", i)
		}
		for _, perm := range g.Can {
			switch perm {
			case "read", "update", "delete":
			default:
				return fmt.Errorf("seed grant %d has unknown permission %q", i, perm)
			}
		}
	}
	return nil
}

func validateBackends(backends []SeedCloudBackend, parent string) error {
	seen := map[string]bool{}
	for _, b := range backends {
		if b.Slug == "" {
			return fmt.Errorf("seed %s has cloud backend with empty slug", parent)
		}
		if seen[b.Slug] {
			return fmt.Errorf("seed cloud backend %s/%s defined twice", parent, b.Slug)
		}
		seen[b.Slug] = true
	}
	return nil
}
