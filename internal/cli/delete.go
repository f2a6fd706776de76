package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

var (
	deleteType string
	deleteID   string
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove every chunk of a source",
	Long: `Delete all stored chunks of one source. Deleting a source that was never
ingested is not an error.

Example:
  rag delete --type product --id oslo-sofa`,
	Args: cobra.NoArgs,
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().StringVarP(&deleteType, "type", "t", "", "source type (required)")
	deleteCmd.Flags().StringVar(&deleteID, "id", "", "source id (required)")
	_ = deleteCmd.MarkFlagRequired("type")
	_ = deleteCmd.MarkFlagRequired("id")
}

func runDelete(cmd *cobra.Command, args []string) error {
	sourceType, err := domain.ParseSourceType(deleteType)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.ingest.Remove(cmd.Context(), sourceType, deleteID)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Printf("Removed %d records of %s/%s\n", n, sourceType, deleteID)
	return nil
}
