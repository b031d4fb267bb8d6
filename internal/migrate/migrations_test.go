package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"launchpad/internal/db"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "lp.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	v1, err := Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if v1 < 1 {
		t.Fatalf("expected a schema version, got %d", v1)
	}
	v2, err := Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if v1 != v2 {
		t.Fatalf("version changed on rerun: %d -> %d", v1, v2)
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM organizations`).Scan(&n); err != nil {
		t.Fatalf("organizations table missing: %v", err)
	}
}
