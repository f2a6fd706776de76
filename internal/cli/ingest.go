package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/fs"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/usecase"
)

var (
	ingestType  string
	ingestID    string
	ingestText  string
	ingestMeta  map[string]string
	ingestForce bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Chunk, embed and store content",
	Long: `Ingest a directory of content files, or a single document given inline.
Each file becomes one source whose id is its path relative to the directory,
without extension. Unchanged sources are skipped unless --force is given.

Examples:
  rag ingest ./content/pages --type page_content
  rag ingest --type product --id oslo-sofa --text "Oslo three-seater sofa..."
  rag ingest ./content/faq --type faq --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVarP(&ingestType, "type", "t", "", "source type: product, page_content, faq, policy (default from config)")
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "source id of an inline document")
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "text of an inline document")
	ingestCmd.Flags().StringToStringVar(&ingestMeta, "meta", nil, "metadata of an inline document (key=value)")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-embed sources even if unchanged")
	ingestCmd.MarkFlagsRequiredTogether("id", "text")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sourceType, err := resolveSourceType(ingestType)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if ingestID != "" {
		if len(args) > 0 {
			return fmt.Errorf("give either a path or --id/--text, not both")
		}
		return ingestInline(cmd, a, sourceType)
	}

	path := GetRootDir()
	if len(args) > 0 {
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	fmt.Printf("Scanning %s...\n", path)
	walker := fs.NewWalker(a.cfg.Ingest.Includes, a.cfg.Ingest.Excludes)
	docs, err := usecase.LoadDocuments(walker, path, sourceType)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No matching files found.")
		return nil
	}

	result, err := a.ingest.IngestAll(ctx, docs, ingestForce, newProgress("Ingesting"))
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printBatch(result)

	if count, err := a.store.Count(ctx); err == nil {
		fmt.Printf("\nStore now holds %d records.\n", count)
	}
	return nil
}

func ingestInline(cmd *cobra.Command, a *app, sourceType domain.SourceType) error {
	meta := make(domain.Metadata, len(ingestMeta))
	for k, v := range ingestMeta {
		meta[k] = domain.String(v)
	}

	result, err := a.ingest.Ingest(cmd.Context(), domain.SourceDocument{
		SourceType: sourceType,
		SourceID:   ingestID,
		Text:       ingestText,
		Metadata:   meta,
	}, ingestForce)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	switch {
	case result.Skipped:
		fmt.Printf("%s/%s unchanged, skipped\n", result.SourceType, result.SourceID)
	case result.Chunks == 0:
		fmt.Printf("%s/%s has no text, removed %d records\n", result.SourceType, result.SourceID, result.Replaced)
	default:
		fmt.Printf("%s/%s: %d chunks stored (%d replaced)\n", result.SourceType, result.SourceID, result.Chunks, result.Replaced)
	}
	return nil
}

func printBatch(result *usecase.BatchResult) {
	fmt.Printf("\nIngest complete:\n")
	fmt.Printf("  Sources ingested: %d\n", result.Ingested)
	fmt.Printf("  Sources skipped:  %d (unchanged)\n", result.Skipped)
	fmt.Printf("  Sources failed:   %d\n", result.Failed)
	fmt.Printf("  Chunks stored:    %d\n", result.Chunks)

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

// newProgress returns a progress callback that draws a bar with an ETA.
// The bar is created on the first call, once the total is known.
func newProgress(label string) func(done, total int) {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)
	desc := fmt.Sprintf("[cyan]%s[reset]", label)

	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(desc),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		_ = bar.Set(done)

		if done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("%s ETA: %s", desc, formatDuration(eta)))
			}
		}
	}
}

func resolveSourceType(flag string) (domain.SourceType, error) {
	if flag == "" {
		flag = GetConfig().Ingest.SourceType
	}
	return domain.ParseSourceType(flag)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
