package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/spf13/cobra"

	"github.com/peoplesgrocers/jsonarchive/pkg/archive"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
)

func newExportCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "export <archive>",
		Short: "Export an archive's history into a SQLite database",
		Long: `Replays the archive and writes its observation history to SQLite for
ad-hoc querying: an archive table with header metadata and an observations
table with one row per point in time, holding the full state as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			if dbPath == "" {
				dbPath = file + ".db"
			}

			idx, diags, err := archive.BuildIndex(cmd.Context(), file)
			if err != nil {
				return err
			}
			if diags != nil && diags.HasFatal() {
				printDiagnostics(diags.Items())
				return failOnFatal(diags)
			}

			if err := exportIndex(dbPath, file, idx); err != nil {
				return err
			}
			slog.Info("exported archive", "archive", file, "db", dbPath, "observations", len(idx.Entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to write (default <archive>.db)")
	return cmd
}

func exportIndex(dbPath, file string, idx *archive.Index) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	const schema = `
CREATE TABLE IF NOT EXISTS archive (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS observations (
	idx          INTEGER PRIMARY KEY,
	id           TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	change_count INTEGER NOT NULL,
	state_json   TEXT NOT NULL
);
DELETE FROM archive;
DELETE FROM observations;
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	meta := map[string]string{
		"source_archive": file,
		"created":        idx.Created.UTC().Format(time.RFC3339),
		"snapshot_count": fmt.Sprintf("%d", idx.SnapshotCount),
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO archive (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert metadata: %w", err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO observations (idx, id, timestamp, change_count, state_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range idx.Entries {
		_, err := stmt.Exec(e.Index, e.ID, e.Timestamp.UTC().Format(time.RFC3339),
			e.ChangeCount, jsonval.Canonical(e.State))
		if err != nil {
			return fmt.Errorf("insert observation %d: %w", e.Index, err)
		}
	}
	return tx.Commit()
}
