package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rubiojr/cmsmirror/pkg/config"
	"github.com/rubiojr/cmsmirror/pkg/db"
	"github.com/urfave/cli/v3"
)

// MigrateCommand creates the migrate command
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Show migration status without applying migrations",
				Value: false,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return RunMigrations(ctx, c.String("config"), c.Bool("status"))
		},
	}
}

// RunMigrations applies pending migrations to the configured relational
// backend, or only reports their status.
func RunMigrations(ctx context.Context, configPath string, statusOnly bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var (
		conn    *sql.DB
		dialect db.Dialect
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		dbPath := cfg.DBPath()
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			fmt.Printf("Database does not exist, will be created on first use: %s\n", dbPath)
			return nil
		}
		conn, err = sql.Open("sqlite3", "file:"+dbPath+"?_pragma=busy_timeout(30000)")
		dialect = db.SQLite
	case config.BackendPostgres:
		conn, err = sql.Open("postgres", cfg.Postgres.URL)
		dialect = db.Postgres
	default:
		fmt.Printf("The %s backend has no schema to migrate\n", cfg.Backend)
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer closeOrWarn("database", conn)

	manager := db.NewMigrationManager(conn, dialect)
	if statusOnly {
		return showMigrationStatus(ctx, manager)
	}

	applied, err := manager.ApplyPendingMigrations(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	if applied == 0 {
		fmt.Println("Database is up to date")
	} else {
		fmt.Printf("Applied %d migrations\n", applied)
	}
	return nil
}

// showMigrationStatus displays the current migration status
func showMigrationStatus(ctx context.Context, manager *db.MigrationManager) error {
	status, err := manager.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Applied migrations: %d\n", len(status.Applied))
	for _, migration := range status.Applied {
		appliedTime := "unknown"
		if migration.AppliedAt != nil {
			appliedTime = migration.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  ✓ %03d: %s (applied: %s)\n", migration.Version, migration.Name, appliedTime)
	}

	fmt.Printf("Pending migrations: %d\n", len(status.Pending))
	for _, migration := range status.Pending {
		fmt.Printf("  • %03d: %s\n", migration.Version, migration.Name)
	}

	if len(status.Pending) == 0 {
		fmt.Println("  (none - database is up to date)")
	}

	return nil
}
