package repo

import (
	"context"
	"database/sql"

	"launchpad/internal/domain"
)

func (r Repo) InsertDeployment(ctx context.Context, tx *sql.Tx, d domain.Deployment) error {
	_, err := r.conn(tx).ExecContext(ctx, `
INSERT INTO deployments(id,environment_id,status,cli_version,framework,runtime,memory,timeout,arch,created_by,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.EnvironmentID, d.Status, d.CLIVersion, nullable(d.Framework), d.Runtime, d.Memory, d.Timeout, d.Arch, d.CreatedBy, d.CreatedAt)
	return err
}

// ListDeployments returns an environment's deployments, newest first.
func (r Repo) ListDeployments(ctx context.Context, envID string) ([]domain.Deployment, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT id,environment_id,status,cli_version,COALESCE(framework,''),runtime,memory,timeout,arch,created_by,created_at
FROM deployments WHERE environment_id=? ORDER BY created_at DESC, id DESC`, envID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deployment
	for rows.Next() {
		var d domain.Deployment
		if err := rows.Scan(&d.ID, &d.EnvironmentID, &d.Status, &d.CLIVersion, &d.Framework, &d.Runtime,
			&d.Memory, &d.Timeout, &d.Arch, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ListEvents returns the most recent events, newest first.
func (r Repo) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `
SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json
FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
