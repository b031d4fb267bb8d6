package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"launchpad/internal/config"
	"launchpad/internal/db"
	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/events"
	"launchpad/internal/migrate"
	"launchpad/internal/repo"
)

// Open opens and migrates the emulator database.
func Open(ctx context.Context, cfg db.Config) (*sql.DB, engine.Engine, error) {
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, engine.Engine{}, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	return conn, engine.New(conn), nil
}

// Bootstrap loads seed into an empty database in a single transaction. A
// database that already holds organizations is left untouched and seeded
// is false.
func Bootstrap(ctx context.Context, e engine.Engine, seed *config.Seed) (seeded bool, err error) {
	if seed == nil {
		return false, nil
	}
	if err := seed.Validate(); err != nil {
		return false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	exists, err := e.Repo.HasOrganizations(ctx, tx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	now := e.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	ids, err := insertResources(ctx, e.Repo, tx, seed, ts)
	if err != nil {
		return false, err
	}
	for _, a := range seed.Actors {
		if err := e.Repo.EnsureActor(ctx, tx, a.ID, ts); err != nil {
			return false, fmt.Errorf("ensure actor %s: %w", a.ID, err)
		}
		for i, secret := range a.APIKeys {
			key := domain.APIKey{
				ID:        uuid.NewString(),
				ActorID:   a.ID,
				Name:      fmt.Sprintf("seed-%d", i+1),
				KeyHash:   repo.HashAPIKey(secret),
				CreatedAt: ts,
			}
			if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
				return false, fmt.Errorf("insert api key for %s: %w", a.ID, err)
			}
		}
	}
	for i, g := range seed.Grants {
		grant, err := ids.grant(g)
		if err != nil {
			return false, fmt.Errorf("seed grant %d: %w", i, err)
		}
		if err := e.Repo.UpsertGrant(ctx, tx, grant); err != nil {
			return false, fmt.Errorf("seed grant %d: %w", i, err)
		}
	}
	if err := e.Events.Append(ctx, tx, "emulator.seed", "emulator", "", "system", events.Payload{
		"organizations": len(seed.Organizations),
		"actors":        len(seed.Actors),
		"grants":        len(seed.Grants),
	}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// slugIDs maps slash-joined slug paths to generated ids.
type slugIDs map[string]string

func insertResources(ctx context.Context, r repo.Repo, tx *sql.Tx, seed *config.Seed, ts string) (slugIDs, error) {
	ids := slugIDs{}
	for _, so := range seed.Organizations {
		org := domain.Organization{ID: uuid.NewString(), Slug: so.Slug, Name: orDefault(so.Name, so.Slug)}
		if err := r.InsertOrganization(ctx, tx, org, ts); err != nil {
			return nil, err
		}
		ids[so.Slug] = org.ID
		for _, sb := range so.CloudBackends {
			b := domain.CloudBackend{ID: uuid.NewString(), OrganizationID: org.ID, Slug: sb.Slug, Provider: orDefault(sb.Provider, "aws")}
			if err := r.InsertCloudBackend(ctx, tx, b, ts); err != nil {
				return nil, err
			}
			ids[so.Slug+"//"+sb.Slug] = b.ID
		}
		for _, sp := range so.Projects {
			p := domain.Project{ID: uuid.NewString(), OrganizationID: org.ID, Slug: sp.Slug, Name: orDefault(sp.Name, sp.Slug)}
			if err := r.InsertProject(ctx, tx, p, ts); err != nil {
				return nil, err
			}
			pKey := so.Slug + "/" + sp.Slug
			ids[pKey] = p.ID
			for _, se := range sp.Environments {
				env := domain.Environment{ID: uuid.NewString(), ProjectID: p.ID, Slug: se.Slug, Name: orDefault(se.Name, se.Slug)}
				if err := r.InsertEnvironment(ctx, tx, env, ts); err != nil {
					return nil, err
				}
				eKey := pKey + "/" + se.Slug
				ids[eKey] = env.ID
				for _, sb := range se.CloudBackends {
					envID := env.ID
					b := domain.CloudBackend{ID: uuid.NewString(), OrganizationID: org.ID, EnvironmentID: &envID, Slug: sb.Slug, Provider: orDefault(sb.Provider, "aws")}
					if err := r.InsertCloudBackend(ctx, tx, b, ts); err != nil {
						return nil, err
					}
					ids[eKey+"/"+sb.Slug] = b.ID
				}
			}
		}
	}
	return ids, nil
}

func (ids slugIDs) grant(g config.SeedGrant) (domain.Grant, error) {
	var kind, key string
	switch {
	case g.Project == "" && g.CloudBackend != "":
		kind, key = "cloud_backend", g.Organization+"//"+g.CloudBackend
	case g.Project == "":
		kind, key = "organization", g.Organization
	case g.Environment == "":
		kind, key = "project", g.Organization+"/"+g.Project
	case g.CloudBackend == "":
		kind, key = "environment", g.Organization+"/"+g.Project+"/"+g.Environment
	default:
		kind, key = "cloud_backend", g.Organization+"/"+g.Project+"/"+g.Environment+"/"+g.CloudBackend
	}
	id, ok := ids[key]
	if !ok {
		return domain.Grant{}, fmt.Errorf("unknown %s %s", kind, key)
	}
	grant := domain.Grant{ActorID: g.Actor, ResourceKind: kind, ResourceID: id}
	for _, p := range g.Can {
		switch p {
		case "read":
			grant.Can.Read = true
		case "update":
			grant.Can.Update = true
		case "delete":
			grant.Can.Delete = true
		}
	}
	return grant, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
