package migrate

import (
	"context"
	"strings"
	"testing"
)

func TestMigrations_EmbeddedInOrder(t *testing.T) {
	files, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("expected at least 2 migrations, got %v", files)
	}
	for i, name := range files {
		if !strings.HasSuffix(name, ".sql") {
			t.Errorf("unexpected migration file %q", name)
		}
		if i > 0 && files[i-1] >= name {
			t.Errorf("migrations out of order: %q before %q", files[i-1], name)
		}
		body, err := embedMigrations.ReadFile(migrationDir + "/" + name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(body), "-- +goose Up") || !strings.Contains(string(body), "-- +goose Down") {
			t.Errorf("%s is missing goose annotations", name)
		}
	}
}

func TestUp_RejectsNonPostgresDrivers(t *testing.T) {
	for _, drv := range []string{"sqlite", "memory", ""} {
		if err := Up(context.Background(), drv, ""); err == nil {
			t.Errorf("Up(%q): expected error", drv)
		}
	}
}
