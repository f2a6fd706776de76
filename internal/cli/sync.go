package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/fs"
	"github.com/vanessasara/full-stack-Devops/internal/logging"
	"github.com/vanessasara/full-stack-Devops/internal/schedule"
	"github.com/vanessasara/full-stack-Devops/internal/usecase"
)

var (
	syncSchedule string
	syncType     string
	syncOnce     bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [path]",
	Short: "Keep the store in step with a content directory",
	Long: `Re-ingest a content directory on a schedule. Files whose content did not
change are skipped, so each run only embeds edits. The schedule is a
five-field cron expression or a descriptor such as "@every 15m".

Examples:
  rag sync ./content/policies --type policy
  rag sync ./content --schedule "0 3 * * *"
  rag sync ./content --once`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncSchedule, "schedule", "", "cron schedule (default from config)")
	syncCmd.Flags().StringVarP(&syncType, "type", "t", "", "source type of the directory (default from config)")
	syncCmd.Flags().BoolVar(&syncOnce, "once", false, "run a single sync and exit")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	spec := syncSchedule
	if spec == "" {
		spec = GetConfig().Ingest.Schedule
	}
	if !syncOnce {
		if err := schedule.Validate(spec); err != nil {
			return err
		}
	}

	sourceType, err := resolveSourceType(syncType)
	if err != nil {
		return err
	}

	path := GetRootDir()
	if len(args) > 0 {
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	walker := fs.NewWalker(a.cfg.Ingest.Includes, a.cfg.Ingest.Excludes)
	job := usecase.NewSyncJob(a.ingest, walker, path, sourceType)

	if syncOnce {
		err := job.Run(ctx)
		if job.LastResult != nil {
			printBatch(job.LastResult)
		}
		return err
	}

	// First pass runs now; the schedule covers later edits.
	if err := job.Run(ctx); err != nil {
		logger.Warn("initial sync failed", zap.Error(err))
	}

	s := schedule.NewCronScheduler()
	if err := s.AddJob(job, spec); err != nil {
		return err
	}
	s.Start(ctx)
	if next, ok := s.Next(job.Name()); ok {
		logger.Info("sync scheduled",
			zap.String("root", path),
			zap.String("schedule", spec),
			zap.Time("next", next))
	}

	<-ctx.Done()
	logger.Info("stopping sync")
	s.Stop()
	return nil
}
