package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"launchpad/internal/domain"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, now string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

// UpsertGrant replaces the actor's descriptor on one resource.
func (r Repo) UpsertGrant(ctx context.Context, tx *sql.Tx, g domain.Grant) error {
	switch g.ResourceKind {
	case "organization", "project", "environment", "cloud_backend":
	default:
		return fmt.Errorf("invalid resource kind %q", g.ResourceKind)
	}
	_, err := r.conn(tx).ExecContext(ctx, `
INSERT INTO grants(actor_id, resource_kind, resource_id, can_read, can_update, can_delete) VALUES (?,?,?,?,?,?)
ON CONFLICT(actor_id, resource_kind, resource_id) DO UPDATE SET
  can_read=excluded.can_read, can_update=excluded.can_update, can_delete=excluded.can_delete`,
		g.ActorID, g.ResourceKind, g.ResourceID, g.Can.Read, g.Can.Update, g.Can.Delete)
	return err
}

// GetGrant returns the descriptor granted on exactly this resource.
func (r Repo) GetGrant(ctx context.Context, actorID, kind, resourceID string) (domain.Can, error) {
	var c domain.Can
	err := r.DB.QueryRowContext(ctx, `SELECT can_read, can_update, can_delete FROM grants WHERE actor_id=? AND resource_kind=? AND resource_id=?`,
		actorID, kind, resourceID).Scan(&c.Read, &c.Update, &c.Delete)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Can{}, ErrNotFound
	}
	return c, err
}

func (r Repo) ListGrants(ctx context.Context, actorID string) ([]domain.Grant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id, resource_kind, resource_id, can_read, can_update, can_delete FROM grants WHERE actor_id=? ORDER BY resource_kind, resource_id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Grant
	for rows.Next() {
		var g domain.Grant
		if err := rows.Scan(&g.ActorID, &g.ResourceKind, &g.ResourceID, &g.Can.Read, &g.Can.Update, &g.Can.Delete); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}
