package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// managedTables lists every table the migrations create, in drop order.
var managedTables = []string{
	"pinboard_links",
	"pinboards",
	"messages",
	"settings",
	"protected_users",
	"schema_migrations",
}

// Migrate applies any embedded migration that has not been recorded in
// schema_migrations. It returns the names of the files it applied.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) ([]string, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := migrationNames()
	if err != nil {
		return nil, err
	}

	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close migration rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration rows: %w", err)
	}

	var ran []string
	for _, file := range files {
		if applied[file] {
			continue
		}
		content, err := fs.ReadFile(migrationFiles, "migrations/"+file)
		if err != nil {
			return ran, fmt.Errorf("read migration %s: %w", file, err)
		}
		for _, stmt := range splitStatements(string(content)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return ran, fmt.Errorf("migration %s: %w", file, err)
			}
		}
		if _, err := db.ExecContext(ctx,
			dialect.rebind("INSERT INTO schema_migrations (filename) VALUES (?)"), file); err != nil {
			return ran, fmt.Errorf("record migration %s: %w", file, err)
		}
		ran = append(ran, file)
	}
	return ran, nil
}

// Prune drops every managed table and reapplies the migrations.
func Prune(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, table := range managedTables {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if _, err := Migrate(ctx, db, dialect); err != nil {
		return fmt.Errorf("recreate schema: %w", err)
	}
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func splitStatements(content string) []string {
	var stmts []string
	for _, part := range strings.Split(content, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
