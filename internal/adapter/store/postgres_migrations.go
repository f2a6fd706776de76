package store

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"

	"github.com/lib/pq"

	"github.com/vanessasara/full-stack-Devops/config"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    VARCHAR(255) PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const (
	tableSettings     = "store_settings"
	settingConfigHash = "config_hash"
	settingModel      = "model"
	vectorIndex       = "idx_document_embeddings_vector"
)

// Migrations that Clear undoes when the embedding table is dropped.
var embeddingMigrations = []string{"0002_document_embeddings", "0003_vector_index"}

type migrationFile struct {
	version string
	body    string
}

func (s *PostgresStore) migrationFiles() ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	lists := s.opts.Lists
	if lists <= 0 {
		lists = 100
	}
	params := struct {
		Dimension int
		Lists     int
	}{s.dimension, lists}

	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+name)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, params); err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		files = append(files, migrationFile{
			version: strings.TrimSuffix(name, ".sql"),
			body:    buf.String(),
		})
	}
	return files, nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, "SELECT to_regclass('schema_migrations') IS NOT NULL")
	if err != nil {
		return nil, classify("check schema_migrations", err)
	}
	applied := make(map[string]bool)
	if !exists {
		return applied, nil
	}
	var versions []string
	if err := s.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, classify("list migrations", err)
	}
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// columnDimension returns the declared vector length of the embedding
// column, or 0 if the table does not exist yet.
func (s *PostgresStore) columnDimension(ctx context.Context) (int, error) {
	var dim sql.NullInt64
	err := s.db.GetContext(ctx, &dim, `SELECT a.atttypmod FROM pg_attribute a
WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding' AND NOT a.attisdropped`, tableEmbeddings)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("read column dimension", err)
	}
	return int(dim.Int64), nil
}

// CheckMigration reports pending migrations and dimension drift.
func (s *PostgresStore) CheckMigration(ctx context.Context, cfg *config.Config) (*MigrationResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	files, err := s.migrationFiles()
	if err != nil {
		return nil, err
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{OldVersion: len(applied), NewVersion: len(files)}
	var pending []string
	for _, f := range files {
		if !applied[f.version] {
			pending = append(pending, f.version)
		}
	}
	if len(pending) > 0 {
		result.NeedsMigration = true
		result.Reason = "pending migrations: " + strings.Join(pending, ", ")
	}

	dim, err := s.columnDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim > 0 && dim != s.dimension {
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("embedding column is vector(%d), configured dimension is %d", dim, s.dimension)
		return result, nil
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	hash := settings[settingConfigHash]
	switch {
	case hash != "" && hash != ComputeConfigHash(cfg):
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("embedding configuration changed (was %s)", settings[settingModel])
	case hash == "" && !result.NeedsMigration:
		result.NeedsMigration = true
		result.Reason = "recording embedding configuration"
	}
	return result, nil
}

// settings returns the store_settings rows, or an empty map before the
// table exists.
func (s *PostgresStore) settings(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	var exists bool
	if err := s.db.GetContext(ctx, &exists, "SELECT to_regclass($1) IS NOT NULL", tableSettings); err != nil {
		return nil, classify("check store_settings", err)
	}
	if !exists {
		return out, nil
	}
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT key, value FROM "+tableSettings); err != nil {
		return nil, classify("read store_settings", err)
	}
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *PostgresStore) saveSettings(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin settings", err)
	}
	defer tx.Rollback()
	for k, v := range values {
		_, err := tx.ExecContext(ctx, `INSERT INTO `+tableSettings+` (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, k, v)
		if err != nil {
			return classify("save setting "+k, err)
		}
	}
	return tx.Commit()
}

// Migrate applies pending migrations, each in its own transaction, then
// verifies the pgvector extension and the embedding column dimension and
// records the embedding configuration the store now serves.
func (s *PostgresStore) Migrate(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return classify("create schema_migrations", err)
	}
	files, err := s.migrationFiles()
	if err != nil {
		return err
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, f := range files {
		if applied[f.version] {
			continue
		}
		if err := s.applyMigration(ctx, f); err != nil {
			return fmt.Errorf("migration %s failed: %w", f.version, err)
		}
	}

	var version string
	if err := s.db.GetContext(ctx, &version, "SELECT extversion FROM pg_extension WHERE extname = 'vector'"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("pgvector extension is not installed")
		}
		return classify("check pgvector", err)
	}
	s.setIterativeScan(supportsIterativeScan(version))

	dim, err := s.columnDimension(ctx)
	if err != nil {
		return err
	}
	if dim != s.dimension {
		return fmt.Errorf("embedding column: %w", &domain.DimensionMismatchError{Expected: s.dimension, Got: dim})
	}
	return s.saveSettings(ctx, map[string]string{
		settingConfigHash: ComputeConfigHash(cfg),
		settingModel:      modelLabel(cfg),
	})
}

// Reindex rebuilds the ivfflat index so its lists are trained on the rows
// currently stored. The index created by the migration on an empty table
// has arbitrary centroids.
func (s *PostgresStore) Reindex(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, "REINDEX INDEX "+vectorIndex); err != nil {
		return classify("reindex", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE "+tableEmbeddings); err != nil {
		return classify("analyze", err)
	}
	return nil
}

func (s *PostgresStore) applyMigration(ctx context.Context, f migrationFile) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin migration", err)
	}
	defer tx.Rollback()

	for _, q := range strings.Split(f.body, ";") {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return classify("execute", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", f.version); err != nil {
		return classify("record migration", err)
	}
	return tx.Commit()
}

// Clear removes every record. When the column dimension no longer matches
// the table is dropped so the next Migrate recreates it.
func (s *PostgresStore) Clear(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	dim, err := s.columnDimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		return nil
	}
	if dim == s.dimension {
		if _, err := s.db.ExecContext(ctx, "TRUNCATE "+tableEmbeddings); err != nil {
			return classify("truncate", err)
		}
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin clear", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+tableEmbeddings); err != nil {
		return classify("drop table", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ANY($1)", pq.Array(embeddingMigrations)); err != nil {
		return classify("reset migrations", err)
	}
	return tx.Commit()
}
