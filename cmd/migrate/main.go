// Command migrate applies the SQL files in migrations/ in lexical order.
// Applied files are tracked in schema_migrations, so reruns are no-ops.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-payment-approvals/internal/config"
	"github.com/ledgerline/be-payment-approvals/internal/database"
	"github.com/ledgerline/be-payment-approvals/internal/logger"
)

func main() {
	dir := flag.String("dir", "migrations", "directory containing .sql migration files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name + "-migrate",
		Version:     cfg.Service.Version,
	})

	ctx := context.Background()

	db, err := database.New(ctx, database.Config{URL: cfg.Database.URL})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		log.Fatal().Err(err).Msg("Failed to create schema_migrations table")
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *dir).Msg("Failed to read migrations directory")
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		var exists bool
		err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, name).Scan(&exists)
		if err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("Failed to check migration state")
		}
		if exists {
			log.Debug().Str("file", name).Msg("Migration already applied, skipping")
			continue
		}

		sql, err := os.ReadFile(filepath.Join(*dir, name))
		if err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("Failed to read migration file")
		}

		err = db.InTransaction(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("Migration failed")
		}

		log.Info().Str("file", name).Msg("Migration applied")
		applied++
	}

	log.Info().Int("applied", applied).Int("total", len(files)).Msg("Database migration completed")
}
