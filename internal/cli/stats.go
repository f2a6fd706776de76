package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	st, err := store.Open(ctx, cfg, GetRootDir())
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer st.Close()

	count, err := st.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Backend:    %s\n", cfg.Store.Backend)
	if b, ok := st.(*store.BoltStore); ok {
		fmt.Printf("Path:       %s\n", b.Path())
	}
	if ix, ok := st.(interface{ IndexName() string }); ok {
		fmt.Printf("Index:      %s\n", ix.IndexName())
	}
	fmt.Printf("Records:    %d\n", count)
	fmt.Printf("Dimension:  %d\n", st.Dimension())
	fmt.Printf("Embedding:  %s/%s\n", cfg.Embedding.Provider, cfg.Embedding.Model)

	if b, ok := st.(*store.BoltStore); ok {
		if info, err := b.GetSchemaInfo(); err == nil && info.Version > 0 {
			fmt.Printf("Schema:     v%d (written by %s)\n", info.Version, info.Model)
		}
	}
	if m, ok := st.(store.Migrator); ok {
		result, err := m.CheckMigration(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to check migration: %w", err)
		}
		switch {
		case result.NeedsRebuild:
			fmt.Printf("Status:     rebuild required (%s)\n", result.Reason)
		case result.NeedsMigration:
			fmt.Printf("Status:     migration pending (%s)\n", result.Reason)
		default:
			fmt.Println("Status:     up to date")
		}
	}
	return nil
}
