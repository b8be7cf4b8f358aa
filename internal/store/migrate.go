package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// migrationLockKey serializes migration runs of concurrently starting
// replicas through a session-level advisory lock.
const migrationLockKey int64 = 0x6c6566

type Migration struct {
	Version string
	Path    string
	Applied bool
}

type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ListMigrations returns the *.up.sql files of dir in version order.
func ListMigrations(migrationsDir string) ([]Migration, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	items := make([]Migration, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		items = append(items, Migration{
			Version: entry.Name(),
			Path:    filepath.Join(migrationsDir, entry.Name()),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Version < items[j].Version })
	return items, nil
}

// MigrationStatus reports which migrations of dir have been applied.
func MigrationStatus(ctx context.Context, db *sql.DB, migrationsDir string) ([]Migration, error) {
	items, err := ListMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	for i := range items {
		applied, err := isMigrated(ctx, db, items[i].Version)
		if err != nil {
			return nil, err
		}
		items[i].Applied = applied
	}
	return items, nil
}

// ApplyMigrations runs every pending migration, each in its own transaction.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	items, err := ListMigrations(migrationsDir)
	if err != nil {
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
			log.Warn().Err(err).Msg("unlock migrations")
		}
	}()

	if err := ensureMigrationsTable(ctx, conn); err != nil {
		return err
	}

	for _, item := range items {
		if migrated, err := isMigrated(ctx, conn, item.Version); err != nil {
			return err
		} else if migrated {
			continue
		}

		contents, err := os.ReadFile(item.Path)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", item.Version, err)
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", item.Version, err)
		}
		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", item.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, item.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", item.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", item.Version, err)
		}
		log.Info().Str("version", item.Version).Msg("migration applied")
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db sqlRunner) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db sqlRunner, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
