package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/quillhq/quill/internal/adapter/postgres"
	"github.com/quillhq/quill/internal/config"
)

// runMigrate applies pending database migrations and exits. Deploy hooks use
// this to migrate before the service instances roll over.
func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dsn := fs.String("dsn", "", "PostgreSQL connection string (defaults to the configured DSN)")
	configPath := fs.String("config", "", "path to YAML config file")
	down := fs.Int("down", 0, "roll back this many migrations instead of applying")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var flags config.CLIFlags
	if *dsn != "" {
		flags.DSN = dsn
	}
	if *configPath != "" {
		flags.ConfigPath = configPath
	}

	cfg, _, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if *down > 0 {
		if err := postgres.RollbackMigrations(context.Background(), cfg.Postgres.DSN, *down); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Rolled back %d migration(s).\n", *down)
		return nil
	}

	if err := postgres.RunMigrations(context.Background(), cfg.Postgres.DSN); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Migrations applied.")
	return nil
}
