package migrations_test

import (
	"context"
	"testing"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/testutil"
	"github.com/Hoang105205/Event-Ticket-Platform/migrations"
)

func TestNames_SortedSQLOnly(t *testing.T) {
	names, err := migrations.Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) < 4 {
		t.Fatalf("expected at least 4 migrations, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("expected sorted names, got %v", names)
		}
	}
}

func TestApply_RecordsMigrations(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS schema_migrations`); err != nil {
		t.Fatalf("drop schema_migrations: %v", err)
	}

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	names, _ := migrations.Names()
	if len(applied) != len(names) {
		t.Fatalf("expected all %d migrations applied, got %v", len(names), applied)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != len(names) {
		t.Fatalf("expected %d recorded migrations, got %d", len(names), count)
	}

	again, err := migrations.Apply(ctx, pool)
	if err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected nothing to apply, got %v", again)
	}
}
