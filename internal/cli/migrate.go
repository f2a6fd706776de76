package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/store"
)

var (
	migrateRebuild bool
	migrateReindex bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending store schema migrations",
	Long: `Bring the store schema up to date. When the embedding model or dimension
changed since the records were written, the stored vectors are unusable and
the store must be cleared with --rebuild, then content ingested again.

The postgres ivfflat index is created on an empty table; run with --reindex
after a bulk ingest so its lists are trained on the stored vectors.

Examples:
  rag migrate
  rag migrate --rebuild && rag ingest ./content --force
  rag migrate --reindex`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateRebuild, "rebuild", false, "clear all records when a rebuild is required")
	migrateCmd.Flags().BoolVar(&migrateReindex, "reindex", false, "rebuild the vector index from the stored records")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	st, err := store.Open(ctx, cfg, GetRootDir())
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer st.Close()

	m, ok := st.(store.Migrator)
	if !ok {
		fmt.Printf("The %s backend has no schema.\n", cfg.Store.Backend)
		return nil
	}

	result, err := m.CheckMigration(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}

	switch {
	case result.NeedsRebuild && !migrateRebuild:
		return fmt.Errorf("store needs a rebuild (%s); rerun with --rebuild", result.Reason)
	case result.NeedsRebuild:
		fmt.Printf("Store rebuild required: %s\n", result.Reason)
		fmt.Println("Clearing existing records...")
		if err := m.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
	case result.NeedsMigration:
		fmt.Printf("Running schema migration: %s\n", result.Reason)
	case migrateRebuild:
		fmt.Println("Clearing existing records...")
		if err := m.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
	case !migrateReindex:
		fmt.Println("Schema is up to date.")
		return nil
	}

	if result.NeedsRebuild || result.NeedsMigration || migrateRebuild {
		if err := m.Migrate(ctx, cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	if migrateReindex {
		r, ok := st.(store.Reindexer)
		if !ok {
			fmt.Printf("The %s backend maintains its index in memory.\n", cfg.Store.Backend)
			return nil
		}
		fmt.Println("Rebuilding vector index...")
		if err := r.Reindex(ctx); err != nil {
			return fmt.Errorf("reindex failed: %w", err)
		}
	}
	fmt.Println("Done.")
	return nil
}
