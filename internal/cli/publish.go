package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/publisher"
	"github.com/newsgrid/harvester/internal/queue/redisq"
)

func newPublishCmd() *cobra.Command {
	var seedFile string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Enqueue seed work items from a JSON file.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)

			queue, err := redisq.New(cfg.Redis, logger.Named("queue"))
			if err != nil {
				return err
			}
			defer func() {
				if err := queue.Close(); err != nil {
					logger.Error("queue close failed", zap.Error(err))
				}
			}()

			res, err := publisher.New(queue, logger.Named("publisher")).
				PublishFile(cmd.Context(), seedFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d items, skipped %d\n",
				res.Published, res.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed file path (JSON)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
