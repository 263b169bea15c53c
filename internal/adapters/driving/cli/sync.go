package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

var (
	syncCommit  string
	syncChanged []string
	syncDeleted []string
	syncSince   string
	syncRef     string
	syncAll     bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise entries from the repository",
	Long: `Applies repository changes to the document store, the same way a
push webhook does. The change set comes from one of:

  --since <sha>          files changed between <sha> and --ref
  --all                  every syncable markdown file at --ref
  --commit <sha> --changed <path> --deleted <path>
                         an explicit change set

Each file is fetched, parsed and stored independently; failures are
listed and make the command exit non-zero.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncCommit, "commit", "", "commit SHA of an explicit change set")
	syncCmd.Flags().StringSliceVar(&syncChanged, "changed", nil, "added or modified path (repeatable)")
	syncCmd.Flags().StringSliceVar(&syncDeleted, "deleted", nil, "removed path (repeatable)")
	syncCmd.Flags().StringVar(&syncSince, "since", "", "sync changes after this commit")
	syncCmd.Flags().StringVar(&syncRef, "ref", "", "branch, tag or SHA to sync to (default: configured branch)")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "resync every markdown file")
	syncCmd.MarkFlagsMutuallyExclusive("since", "all", "commit")
	rootCmd.AddCommand(syncCmd)
}

// syncParams resolves the flags into a change set.
func syncParams(ctx context.Context, a *App) (domain.SyncParams, error) {
	if syncCommit != "" {
		return domain.SyncParams{
			ChangedFiles: syncChanged,
			DeletedFiles: syncDeleted,
			CommitSHA:    syncCommit,
		}, nil
	}
	if len(syncChanged) > 0 || len(syncDeleted) > 0 {
		return domain.SyncParams{}, errors.New("--changed and --deleted require --commit")
	}
	if !syncAll && syncSince == "" {
		return domain.SyncParams{}, errors.New("one of --since, --all or --commit is required")
	}
	if a.Source == nil {
		return domain.SyncParams{}, errors.New("repository not configured")
	}

	ref := syncRef
	if ref == "" && a.Config != nil {
		ref = a.Config.GitHub.Branch
	}
	if ref == "" {
		ref = "main"
	}
	if syncAll {
		return a.Source.ListMarkdown(ctx, ref)
	}
	return a.Source.CompareCommits(ctx, syncSince, ref)
}

func runSync(cmd *cobra.Command, _ []string) error {
	a, closeApp, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	if a.Sync == nil {
		return errors.New("sync service not configured")
	}

	params, err := syncParams(cmd.Context(), a)
	if err != nil {
		return err
	}
	if params.IsEmpty() {
		cmd.Println("Nothing to synchronise.")
		return nil
	}

	cmd.Printf("Synchronising %d changed and %d deleted files at %s...\n",
		len(params.ChangedFiles), len(params.DeletedFiles), params.CommitSHA)

	report, err := a.Sync.Sync(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return printReport(cmd, report)
}

func printReport(cmd *cobra.Command, report *domain.SyncReport) error {
	cmd.Printf("%s (%s)\n", report.Summary(), report.Duration.Round(time.Millisecond))

	failures := report.Failures()
	if len(failures) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Failed:")
	for _, f := range failures {
		cmd.Printf("  %s [%s after %d attempts]: %v\n", f.FilePath, f.Outcome, f.Attempts, f.Err)
	}
	return fmt.Errorf("%d of %d files failed", len(failures), len(report.Steps))
}
