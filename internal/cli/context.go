package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

var (
	contextTopK     int
	contextMaxChars int
	contextType     string
	contextJSON     bool
)

var contextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Assemble a context bundle for the assistant",
	Long: `Retrieve the chunks nearest to the query and pack them, most similar
first, into a bundle that fits the character budget. An empty bundle means
nothing relevant is stored.

Examples:
  rag context "can I return a sofa"
  rag context "oak dining table sizes" --type product --max-chars 2000 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runContext,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.Flags().IntVarP(&contextTopK, "top-k", "k", 0, "number of candidates (default from config)")
	contextCmd.Flags().IntVar(&contextMaxChars, "max-chars", 0, "character budget (default from config)")
	contextCmd.Flags().StringVarP(&contextType, "type", "t", "", "only use this source type")
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "output as JSON")
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req := domain.ContextRequest{
		Query:    strings.Join(args, " "),
		K:        contextTopK,
		MaxChars: contextMaxChars,
	}
	if contextType != "" {
		t, err := domain.ParseSourceType(contextType)
		if err != nil {
			return err
		}
		req.SourceType = t
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	bundle, err := a.retriever.RetrieveContext(ctx, req)
	if err != nil {
		return err
	}

	if contextJSON {
		output, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	if bundle.Empty() {
		fmt.Println("No relevant context found.")
		return nil
	}
	fmt.Println(bundle.Render())
	fmt.Printf("\n(%d passages, %d/%d chars)\n", len(bundle.Items), bundle.TotalChars, bundle.MaxChars)
	return nil
}
