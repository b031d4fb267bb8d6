package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"launchpad/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) conn(tx *sql.Tx) dbtx {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) InsertOrganization(ctx context.Context, tx *sql.Tx, o domain.Organization, createdAt string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO organizations(id,slug,name,created_at) VALUES (?,?,?,?)`,
		o.ID, o.Slug, o.Name, createdAt)
	if err != nil {
		return fmt.Errorf("insert organization %s: %w", o.Slug, err)
	}
	return nil
}

func scanOrganization(row *sql.Row) (domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(&o.ID, &o.Slug, &o.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) OrganizationBySlug(ctx context.Context, slug string) (domain.Organization, error) {
	return scanOrganization(r.DB.QueryRowContext(ctx, `SELECT id,slug,name FROM organizations WHERE slug=?`, slug))
}

func (r Repo) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,slug,name FROM organizations ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		var o domain.Organization
		if err := rows.Scan(&o.ID, &o.Slug, &o.Name); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// HasOrganizations reports whether any organization exists.
func (r Repo) HasOrganizations(ctx context.Context, tx *sql.Tx) (bool, error) {
	var n int
	err := r.conn(tx).QueryRowContext(ctx, `SELECT 1 FROM organizations LIMIT 1`).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project, createdAt string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO projects(id,organization_id,slug,name,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.OrganizationID, p.Slug, p.Name, createdAt)
	if err != nil {
		return fmt.Errorf("insert project %s: %w", p.Slug, err)
	}
	return nil
}

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Slug, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,organization_id,slug,name FROM projects WHERE id=?`, id))
}

func (r Repo) ProjectBySlug(ctx context.Context, orgID, slug string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,organization_id,slug,name FROM projects WHERE organization_id=? AND slug=?`, orgID, slug))
}

func (r Repo) InsertEnvironment(ctx context.Context, tx *sql.Tx, e domain.Environment, createdAt string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO environments(id,project_id,slug,name,created_at) VALUES (?,?,?,?,?)`,
		e.ID, e.ProjectID, e.Slug, e.Name, createdAt)
	if err != nil {
		return fmt.Errorf("insert environment %s: %w", e.Slug, err)
	}
	return nil
}

func scanEnvironment(row *sql.Row) (domain.Environment, error) {
	var e domain.Environment
	err := row.Scan(&e.ID, &e.ProjectID, &e.Slug, &e.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) GetEnvironment(ctx context.Context, id string) (domain.Environment, error) {
	return scanEnvironment(r.DB.QueryRowContext(ctx, `SELECT id,project_id,slug,name FROM environments WHERE id=?`, id))
}

func (r Repo) EnvironmentBySlug(ctx context.Context, projectID, slug string) (domain.Environment, error) {
	return scanEnvironment(r.DB.QueryRowContext(ctx, `SELECT id,project_id,slug,name FROM environments WHERE project_id=? AND slug=?`, projectID, slug))
}

func (r Repo) ListEnvironments(ctx context.Context, projectID string) ([]domain.Environment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,slug,name FROM environments WHERE project_id=? ORDER BY slug`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Environment
	for rows.Next() {
		var e domain.Environment
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Slug, &e.Name); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertCloudBackend(ctx context.Context, tx *sql.Tx, b domain.CloudBackend, createdAt string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO cloud_backends(id,organization_id,environment_id,slug,provider,created_at) VALUES (?,?,?,?,?,?)`,
		b.ID, b.OrganizationID, b.EnvironmentID, b.Slug, b.Provider, createdAt)
	if err != nil {
		return fmt.Errorf("insert cloud backend %s: %w", b.Slug, err)
	}
	return nil
}

func scanCloudBackend(row *sql.Row) (domain.CloudBackend, error) {
	var b domain.CloudBackend
	var envID sql.NullString
	err := row.Scan(&b.ID, &b.OrganizationID, &envID, &b.Slug, &b.Provider)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	if envID.Valid {
		b.EnvironmentID = &envID.String
	}
	return b, err
}

func (r Repo) EnvironmentCloudBackendBySlug(ctx context.Context, envID, slug string) (domain.CloudBackend, error) {
	return scanCloudBackend(r.DB.QueryRowContext(ctx,
		`SELECT id,organization_id,environment_id,slug,provider FROM cloud_backends WHERE environment_id=? AND slug=?`, envID, slug))
}

func (r Repo) OrganizationCloudBackendBySlug(ctx context.Context, orgID, slug string) (domain.CloudBackend, error) {
	return scanCloudBackend(r.DB.QueryRowContext(ctx,
		`SELECT id,organization_id,environment_id,slug,provider FROM cloud_backends WHERE organization_id=? AND environment_id IS NULL AND slug=?`, orgID, slug))
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
