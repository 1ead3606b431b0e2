package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Strob0t/ReviewMesh/internal/adapter/postgres"
	"github.com/Strob0t/ReviewMesh/internal/config"
)

// runMigrate dispatches migration subcommands (up, down, status).
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printMigrateHelp()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("no postgres dsn configured")
	}

	ctx := context.Background()

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		fmt.Fprintln(os.Stderr, "migrations applied")
		return nil

	case "down":
		fs := flag.NewFlagSet("down", flag.ContinueOnError)
		steps := fs.Int("steps", 1, "number of migrations to roll back")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		fmt.Fprintf(os.Stderr, "rolled back %d migration(s)\n", *steps)
		return nil

	case "status":
		version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("migrate status: %w", err)
		}
		fmt.Printf("current migration version: %d\n", version)
		return nil

	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}
}

func printMigrateHelp() {
	fmt.Fprintf(os.Stderr, `Usage: reviewmesh migrate <command> [options]

Commands:
  up       Apply all pending migrations
  down     Roll back migrations (--steps N, default 1)
  status   Print the current migration version
  help     Show this help message
`)
}
