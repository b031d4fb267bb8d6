package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"launchpad/internal/app"
	"launchpad/internal/config"
	"launchpad/internal/db"
	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/engine/auth"
	"launchpad/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func testSeed() *config.Seed {
	return &config.Seed{
		Organizations: []config.SeedOrganization{{
			Slug: "acme",
			Projects: []config.SeedProject{
				{Slug: "web", Environments: []config.SeedEnvironment{
					{Slug: "prod", CloudBackends: []config.SeedCloudBackend{{Slug: "aws", Provider: "aws"}}},
					{Slug: "staging"},
				}},
				{Slug: "api", Environments: []config.SeedEnvironment{{Slug: "prod"}}},
			},
			CloudBackends: []config.SeedCloudBackend{{Slug: "shared", Provider: "gcp"}},
		}},
		Actors: []config.SeedActor{{ID: "alice", APIKeys: []string{"alice-key"}}, {ID: "bob"}},
		Grants: []config.SeedGrant{
			{Actor: "alice", Organization: "acme", Can: []string{"read", "update", "delete"}},
			{Actor: "alice", Organization: "acme", Project: "api", Can: []string{}},
			{Actor: "bob", Organization: "acme", Can: []string{"read"}},
			{Actor: "bob", Organization: "acme", Project: "web", Environment: "staging", Can: []string{"read", "update"}},
		},
	}
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	conn, eng, err := app.Open(ctx, db.Config{Path: filepath.Join(t.TempDir(), "lp.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	seeded, err := app.Bootstrap(ctx, eng, testSeed())
	if err != nil || !seeded {
		t.Fatalf("bootstrap: %v %v", seeded, err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func TestBootstrapIsOneShot(t *testing.T) {
	env := newTestEnv(t)
	seeded, err := app.Bootstrap(env.Ctx, env.Engine, testSeed())
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if seeded {
		t.Fatalf("populated database should not be seeded again")
	}
	orgs, err := env.Engine.Repo.ListOrganizations(env.Ctx)
	if err != nil || len(orgs) != 1 {
		t.Fatalf("unexpected orgs %v %v", orgs, err)
	}
}

func TestMostSpecificGrantWins(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	org, err := e.OrganizationBySlug(env.Ctx, "alice", "acme")
	if err != nil {
		t.Fatalf("org: %v", err)
	}
	if !org.Can.Update || !org.Can.Delete {
		t.Fatalf("alice should hold full access on acme: %+v", org.Can)
	}
	web, err := e.ProjectBySlug(env.Ctx, "alice", org.ID, "web")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if web.Can != org.Can {
		t.Fatalf("project should inherit org grant: %+v", web.Can)
	}
	// an empty grant on api overrides the org grant
	_, err = e.ProjectBySlug(env.Ctx, "alice", org.ID, "api")
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) || fe.Permission != "read" {
		t.Fatalf("expected forbidden on api, got %v", err)
	}

	staging, err := e.EnvironmentBySlug(env.Ctx, "bob", web.ID, "staging")
	if err != nil {
		t.Fatalf("bob staging: %v", err)
	}
	if !staging.Can.Update || staging.Can.Delete {
		t.Fatalf("unexpected staging descriptor %+v", staging.Can)
	}
	prod, err := e.EnvironmentBySlug(env.Ctx, "bob", web.ID, "prod")
	if err != nil {
		t.Fatalf("bob prod: %v", err)
	}
	if prod.Can.Update {
		t.Fatalf("bob should only read prod: %+v", prod.Can)
	}
	be, err := e.EnvironmentCloudBackendBySlug(env.Ctx, "bob", prod.ID, "aws")
	if err != nil || be.Can.Update {
		t.Fatalf("backend inherits read-only: %+v %v", be, err)
	}
	shared, err := e.OrganizationCloudBackendBySlug(env.Ctx, "alice", org.ID, "shared")
	if err != nil || !shared.Can.Delete {
		t.Fatalf("org backend: %+v %v", shared, err)
	}
}

func TestUnknownActorAndSlug(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.OrganizationBySlug(env.Ctx, "mallory", "acme"); !errors.As(err, new(auth.ForbiddenError)) {
		t.Fatalf("actor without grants must be forbidden, got %v", err)
	}
	if _, err := env.Engine.OrganizationBySlug(env.Ctx, "alice", "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListings(t *testing.T) {
	env := newTestEnv(t)
	orgs, err := env.Engine.ListOrganizations(env.Ctx, "mallory")
	if err != nil || len(orgs) != 0 {
		t.Fatalf("mallory sees nothing: %v %v", orgs, err)
	}
	orgs, err = env.Engine.ListOrganizations(env.Ctx, "bob")
	if err != nil || len(orgs) != 1 || orgs[0].Can.Update {
		t.Fatalf("bob listing: %+v %v", orgs, err)
	}
	web, _ := env.Engine.ProjectBySlug(env.Ctx, "bob", orgs[0].ID, "web")
	envs, err := env.Engine.ListEnvironments(env.Ctx, "bob", web.ID)
	if err != nil || len(envs) != 2 {
		t.Fatalf("environments: %+v %v", envs, err)
	}
}

func TestCreateDeployment(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	org, _ := e.OrganizationBySlug(env.Ctx, "bob", "acme")
	web, _ := e.ProjectBySlug(env.Ctx, "bob", org.ID, "web")
	staging, _ := e.EnvironmentBySlug(env.Ctx, "bob", web.ID, "staging")
	prod, _ := e.EnvironmentBySlug(env.Ctx, "bob", web.ID, "prod")

	req := domain.DeploymentRequest{CLIVersion: "1.0.0", Runtime: "nodejs20.x", Memory: 1024, Timeout: 30, Arch: "arm64"}
	d, err := e.CreateDeployment(env.Ctx, "bob", staging.ID, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Status != "pending" || d.CreatedBy != "bob" || d.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected deployment %+v", d)
	}
	if _, err := e.CreateDeployment(env.Ctx, "bob", prod.ID, req); !errors.As(err, new(auth.ForbiddenError)) {
		t.Fatalf("expected forbidden on prod, got %v", err)
	}

	bad := req
	bad.Runtime = "ruby"
	var ve engine.ValidationError
	if _, err := e.CreateDeployment(env.Ctx, "bob", staging.ID, bad); !errors.As(err, &ve) || ve.Field != "runtime" {
		t.Fatalf("expected runtime validation error, got %v", err)
	}
	bad = req
	bad.Memory = 0
	if _, err := e.CreateDeployment(env.Ctx, "bob", staging.ID, bad); !errors.As(err, &ve) {
		t.Fatalf("expected memory validation error, got %v", err)
	}

	if _, err := e.ListDeployments(env.Ctx, "mallory", staging.ID); !errors.As(err, new(auth.ForbiddenError)) {
		t.Fatalf("mallory cannot list deployments, got %v", err)
	}
	list, err := e.ListDeployments(env.Ctx, "bob", staging.ID)
	if err != nil || len(list) != 1 || list[0].ID != d.ID {
		t.Fatalf("deployments: %+v %v", list, err)
	}
	evts, err := e.Repo.ListEvents(env.Ctx, 10)
	if err != nil || len(evts) == 0 || evts[0].Type != "deployment.create" || evts[0].EntityID != d.ID {
		t.Fatalf("events: %+v %v", evts, err)
	}
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	actor, err := env.Engine.Authenticate(env.Ctx, "alice-key")
	if err != nil || actor != "alice" {
		t.Fatalf("seeded key: %q %v", actor, err)
	}
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "carol", "laptop")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if key.KeyHash == secret || key.KeyHash != repo.HashAPIKey(secret) {
		t.Fatalf("key must be stored hashed")
	}
	actor, err = env.Engine.Authenticate(env.Ctx, secret)
	if err != nil || actor != "carol" {
		t.Fatalf("new key: %q %v", actor, err)
	}
	keys, err := env.Engine.Repo.ListAPIKeys(env.Ctx, "carol")
	if err != nil || len(keys) != 1 || keys[0].LastUsedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("key use not recorded: %+v %v", keys, err)
	}
	all, err := env.Engine.Repo.ListAPIKeys(env.Ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected seeded and new key, got %+v %v", all, err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "wrong"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
