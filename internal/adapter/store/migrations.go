package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/vanessasara/full-stack-Devops/config"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

// CurrentSchemaVersion is the current bolt schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keySchemaInfo = []byte("schema_info")

// SchemaInfo stores the schema version and the embedding settings the
// records were written with.
type SchemaInfo struct {
	Version    int    `json:"version"`
	Dimension  int    `json:"dimension"`
	Model      string `json:"model"`
	ConfigHash string `json:"config_hash"`
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// Migrator is implemented by persistent stores.
type Migrator interface {
	CheckMigration(ctx context.Context, cfg *config.Config) (*MigrationResult, error)
	Migrate(ctx context.Context, cfg *config.Config) error
	Clear(ctx context.Context) error
}

// Reindexer is implemented by stores whose vector index is trained on the
// rows present when it is built.
type Reindexer interface {
	Reindex(ctx context.Context) error
}

// ComputeConfigHash fingerprints the settings that change stored vectors.
// A different hash means existing records should be re-embedded.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		Provider     string `json:"provider"`
		Model        string `json:"model"`
		Dimension    int    `json:"dimension"`
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
	}{
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		Dimension:    cfg.Embedding.Dimension,
		ChunkSize:    cfg.Chunk.Size,
		ChunkOverlap: cfg.Chunk.Overlap,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

func modelLabel(cfg *config.Config) string {
	return cfg.Embedding.Provider + "/" + cfg.Embedding.Model
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchemaInfo)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &info)
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySchemaInfo, data)
	})
}

// CheckMigration checks if migration or rebuild is needed.
func (s *BoltStore) CheckMigration(ctx context.Context, cfg *config.Config) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	s.mu.RLock()
	stale := s.stale
	s.mu.RUnlock()

	switch {
	case info.Dimension != 0 && info.Dimension != s.Dimension():
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("embedding dimension changed from %d to %d", info.Dimension, s.Dimension())
	case stale > 0:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("%d records have a different embedding dimension", stale)
	case info.ConfigHash != "" && info.ConfigHash != ComputeConfigHash(cfg):
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("embedding configuration changed (was %s)", info.Model)
	}
	return result, nil
}

// Migrate performs any necessary schema migrations and records the
// current embedding settings.
func (s *BoltStore) Migrate(ctx context.Context, cfg *config.Config) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return err
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	return s.SetSchemaInfo(&SchemaInfo{
		Version:    CurrentSchemaVersion,
		Dimension:  s.Dimension(),
		Model:      modelLabel(cfg),
		ConfigHash: ComputeConfigHash(cfg),
	})
}

// runMigration runs a specific version migration.
func (s *BoltStore) runMigration(from, to int) error {
	switch {
	case from == 0 && to == 1:
		return s.db.Update(func(tx *bbolt.Tx) error {
			for _, b := range [][]byte{bucketRecords, bucketMeta} {
				if _, err := tx.CreateBucketIfNotExists(b); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		return nil
	}
}

// Clear removes every record (for rebuild). Schema info is kept.
func (s *BoltStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketRecords)
		return err
	})
	if err != nil {
		return domain.Unavailable("bolt clear", err)
	}
	s.catalog.Reset()
	s.stale = 0
	return nil
}
