package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

var (
	searchTopK      int
	searchType      string
	searchThreshold float64
	searchJSON      bool
)

type searchHit struct {
	ID         string            `json:"id"`
	SourceType domain.SourceType `json:"source_type"`
	SourceID   string            `json:"source_id"`
	Position   int               `json:"position"`
	Similarity float64           `json:"similarity"`
	Text       string            `json:"text"`
	Metadata   domain.Metadata   `json:"metadata,omitempty"`
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the chunks nearest to a query",
	Long: `Embed the query and list the most similar stored chunks.

Examples:
  rag search "brown leather sofa"
  rag search "delivery times" --type faq -k 3 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "", "only search this source type")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum cosine similarity (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")

	opts, err := searchOptions(cmd)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.retrieve.Search(ctx, query, opts)
	if err != nil {
		return err
	}

	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{
			ID:         r.Record.ID,
			SourceType: r.Record.Chunk.SourceType,
			SourceID:   r.Record.Chunk.SourceID,
			Position:   r.Record.Chunk.Position,
			Similarity: r.Similarity,
			Text:       r.Record.Chunk.Text,
			Metadata:   r.Record.Metadata,
		})
	}

	if searchJSON {
		output, err := json.MarshalIndent(hits, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(hits), query)
	for i, h := range hits {
		fmt.Printf("--- [%d] %s:%s #%d (similarity: %.3f) ---\n", i+1, h.SourceType, h.SourceID, h.Position, h.Similarity)
		fmt.Println(truncate(h.Text, 500))
		fmt.Println()
	}
	return nil
}

func searchOptions(cmd *cobra.Command) (domain.SearchOptions, error) {
	cfg := GetConfig()
	opts := domain.SearchOptions{
		K:         cfg.Retrieve.TopK,
		Threshold: cfg.Retrieve.SimilarityThreshold,
	}
	if cmd.Flags().Changed("top-k") {
		opts.K = searchTopK
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = searchThreshold
	}
	if searchType != "" {
		t, err := domain.ParseSourceType(searchType)
		if err != nil {
			return opts, err
		}
		opts.SourceType = t
	}
	return opts, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
