package superschedules

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/SuperSchedules/superschedules/internal/container"
)

var backfillBatchSize int

var embedEventsCmd = &cobra.Command{
	Use:   "embed-events",
	Short: "Compute embeddings for events stored without one",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		if backfillBatchSize > 0 {
			cfg.Corpus.BatchSize = backfillBatchSize
		}

		c, err := container.NewContainer(cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx := cmd.Context()
		if !c.WaitForDB(ctx) {
			return errors.New("database not ready after waiting")
		}
		n, err := c.Indexer.Backfill(ctx)
		if err != nil {
			return err
		}
		logger.Info("Embedding backfill complete", slog.Int("events", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(embedEventsCmd)
	embedEventsCmd.Flags().IntVar(&backfillBatchSize, "batch-size", 0, "events per embedding batch (default from config)")
}
