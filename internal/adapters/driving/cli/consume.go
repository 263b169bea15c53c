package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Apply store changes to the vector index",
	Long: `Consumes document store change notifications and upserts or
deletes the matching vectors until interrupted. Requires the sqlite store
backend so that notifications outlive the process that wrote them.`,
	Args: cobra.NoArgs,
	RunE: runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, _ []string) error {
	logger.SetTimestamps(true)

	a, closeApp, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	if a.Indexer == nil {
		return errors.New("index synchroniser not configured")
	}
	if a.Config != nil && domain.StoreBackend(a.Config.Store.Backend) == domain.StoreBackendMemory {
		logger.Warn("memory store: only changes made by this process are consumed")
	}

	if err := a.Indexer.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
