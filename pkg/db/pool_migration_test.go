package db

import (
	"context"
	"strings"
	"testing"
)

const poolMigrationTestPrefix = "db:pool_migration_test"

func TestMigrationDown_NotSupported(t *testing.T) {
	err := MigrationDown(context.Background(), nil, "")
	if err == nil || !strings.Contains(err.Error(), "forward-only") {
		t.Errorf("%s - MigrationDown returned %v, want forward-only error", poolMigrationTestPrefix, err)
	}
}

func TestSchemaStatus_String(t *testing.T) {
	applied := SchemaStatus{Applied: true, MigrationFiles: 1, Source: "./migrations"}
	if got := applied.String(); !strings.Contains(got, "applied (command_journal present, 1 migration files") {
		t.Errorf("%s - applied = %q", poolMigrationTestPrefix, got)
	}
	pending := SchemaStatus{MigrationFiles: 2, Source: "./migrations"}
	if got := pending.String(); !strings.Contains(got, "run 'bridge migrate up'") {
		t.Errorf("%s - pending = %q", poolMigrationTestPrefix, got)
	}
}
