// Package migrate applies the Postgres schema used by the pgx storage backend.
// GORM backends migrate themselves with AutoMigrate.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var embedMigrations embed.FS

const migrationDir = "migrations/postgres"

func configureGoose() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetTableName("schema_migrations")
	return goose.SetDialect("postgres")
}

func supported(driver string) error {
	switch driver {
	case "postgres", "pgx", "postgrespool":
		return nil
	}
	return fmt.Errorf("unsupported driver for goose: %s", driver)
}

func openDB(driver, dsn string) (*sql.DB, error) {
	if err := supported(driver); err != nil {
		return nil, err
	}
	if dsn == "" {
		dsn = "postgres://localhost:5432/ebill?sslmode=disable"
	}
	return sql.Open("pgx", dsn)
}

// Migrations lists the embedded migration files in apply order.
func Migrations() ([]string, error) {
	entries, err := embedMigrations.ReadDir(migrationDir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// UpPool applies pending migrations through an existing pgx pool.
func UpPool(ctx context.Context, pool *pgxpool.Pool) error {
	if err := configureGoose(); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return goose.UpContext(ctx, db, migrationDir)
}

func Up(ctx context.Context, driver, dsn string) error {
	if err := configureGoose(); err != nil {
		return err
	}
	db, err := openDB(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.UpContext(ctx, db, migrationDir)
}

func Down(ctx context.Context, driver, dsn string) error {
	if err := configureGoose(); err != nil {
		return err
	}
	db, err := openDB(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.DownContext(ctx, db, migrationDir)
}

func Status(ctx context.Context, driver, dsn string) error {
	if err := configureGoose(); err != nil {
		return err
	}
	db, err := openDB(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.StatusContext(ctx, db, migrationDir)
}
