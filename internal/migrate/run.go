package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/joblink/joblink-web/internal/data/pgxutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createVersionTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Migration is one embedded schema change and whether it has been applied.
type Migration struct {
	Version string
	Applied bool
}

// Run applies all SQL migrations embedded in this package. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB) error {
	pending, err := Status(ctx, db)
	if err != nil {
		return err
	}
	logger := slog.Default().With("component", "migrations")
	for _, m := range pending {
		if m.Applied {
			continue
		}
		logger.InfoContext(ctx, "applying migration", "version", m.Version)
		if err := apply(ctx, db, m.Version); err != nil {
			return err
		}
	}
	return nil
}

// Status lists embedded migrations in order with their applied flag.
func Status(ctx context.Context, db *sql.DB) ([]Migration, error) {
	if _, err := db.ExecContext(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}
	versions, err := embeddedVersions()
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(versions))
	for _, v := range versions {
		var exists bool
		query := `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`
		if err := db.QueryRowContext(ctx, query, v).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check migration %s: %w", v, err)
		}
		out = append(out, Migration{Version: v, Applied: exists})
	}
	return out, nil
}

func embeddedVersions() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			versions = append(versions, strings.TrimSuffix(e.Name(), ".sql"))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func apply(ctx context.Context, db *sql.DB, version string) error {
	sqlBytes, err := migrationsFS.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}
	err = pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, string(sqlBytes)); execErr != nil {
			return fmt.Errorf("exec: %w", execErr)
		}
		if _, insErr := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); insErr != nil {
			return fmt.Errorf("record: %w", insErr)
		}
		return nil
	}})
	if err != nil {
		return fmt.Errorf("migration %s: %w", version, err)
	}
	return nil
}
