package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vanessasara/full-stack-Devops/config"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/index"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/memstore"
	"github.com/vanessasara/full-stack-Devops/internal/logging"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// Open creates the configured backend. dir is the root the bolt path is
// resolved against.
func Open(ctx context.Context, cfg *config.Config, dir string) (port.VectorStore, error) {
	logger := logging.FromContext(ctx)
	dim := cfg.Embedding.Dimension

	switch cfg.Store.Backend {
	case "memory":
		idx, err := index.New(cfg.Store.Index, cfg.Store.IVF.Lists, cfg.Store.IVF.Probes)
		if err != nil {
			return nil, err
		}
		return memstore.NewMemoryStore(dim, idx), nil

	case "bolt", "":
		path := cfg.StorePath(dir)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		idx, err := index.New(cfg.Store.Index, cfg.Store.IVF.Lists, cfg.Store.IVF.Probes)
		if err != nil {
			return nil, err
		}
		s, err := OpenBolt(path, dim, BoltOptions{Timeout: cfg.Store.OpenTimeout, Index: idx})
		if err != nil {
			if IsLocked(err) {
				return nil, fmt.Errorf("%s is locked by another rag process: %w", path, err)
			}
			return nil, err
		}
		fields := []zap.Field{zap.String("path", path), zap.String("index", s.IndexName())}
		if count, err := s.Count(ctx); err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("records", count))
		}
		logger.Debug("opened bolt store", fields...)
		return s, nil

	case "postgres":
		dsn, err := cfg.Store.ResolveDSN()
		if err != nil {
			return nil, err
		}
		s, err := OpenPostgres(ctx, dim, PostgresOptions{
			DSN:             dsn,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
			QueryTimeout:    cfg.Store.QueryTimeout,
			Lists:           cfg.Store.IVF.Lists,
			Probes:          cfg.Store.IVF.Probes,
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("connected to postgres", zap.Int("dimension", dim))
		return s, nil
	}
	return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
}

// EnsureSchema runs pending migrations on persistent stores and refuses to
// continue when stored vectors need a rebuild.
func EnsureSchema(ctx context.Context, s port.VectorStore, cfg *config.Config) error {
	m, ok := s.(Migrator)
	if !ok {
		return nil
	}
	result, err := m.CheckMigration(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}
	if result.NeedsRebuild {
		return fmt.Errorf("store needs a rebuild (%s); run `rag migrate --rebuild`", result.Reason)
	}
	if result.NeedsMigration {
		logging.FromContext(ctx).Info("running schema migration", zap.String("reason", result.Reason))
		if err := m.Migrate(ctx, cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
