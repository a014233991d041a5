package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/clock/system"
	"github.com/newsgrid/harvester/internal/config"
	"github.com/newsgrid/harvester/internal/consumer"
	"github.com/newsgrid/harvester/internal/fetcher"
	"github.com/newsgrid/harvester/internal/fetcher/headless"
	"github.com/newsgrid/harvester/internal/fetcher/static"
	"github.com/newsgrid/harvester/internal/pipeline"
	"github.com/newsgrid/harvester/internal/queue/redisq"
	"github.com/newsgrid/harvester/internal/store/postgres"
	"github.com/newsgrid/harvester/internal/urlhash"
)

func newConsumeCmd() *cobra.Command {
	var maxArticles int

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Run the ingestion loop until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)
			if cmd.Flags().Changed("max") {
				cfg.Consumer.MaxArticles = maxArticles
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			queue, err := redisq.New(cfg.Redis, logger.Named("queue"))
			if err != nil {
				return err
			}
			defer func() {
				if err := queue.Close(); err != nil {
					logger.Error("queue close failed", zap.Error(err))
				}
			}()

			store, err := postgres.New(ctx, cfg.Postgres, logger.Named("store"))
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			c := consumer.New(
				queue,
				store,
				buildStrategy(cfg, logger),
				urlhash.New(),
				system.New(),
				consumer.Config{
					BatchSize:    cfg.Consumer.BatchSize,
					PollInterval: cfg.PollInterval(),
					MaxArticles:  cfg.Consumer.MaxArticles,
				},
				logger.Named("consumer"),
			)
			return c.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&maxArticles, "max", 0, "stop after this many processed articles (0 = unlimited)")
	return cmd
}

func buildStrategy(cfg config.Config, logger *zap.Logger) *fetcher.Strategy {
	validator := fetcher.NewValidator(cfg.Scraper.RequiredElements)

	staticFetcher := static.New(static.Config{
		UserAgent:  cfg.Scraper.Request.UserAgent,
		Timeout:    cfg.RequestTimeout(),
		MaxRetries: cfg.Scraper.Request.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay(),
	}, validator, logger.Named("static"))

	var rendered pipeline.Fetcher
	if cfg.Scraper.Headless.Enabled {
		rendered = headless.New(headless.Config{
			UserAgent:   cfg.Scraper.Request.UserAgent,
			NavTimeout:  cfg.NavTimeout(),
			SettleDelay: cfg.WaitTimeout(),
		}, validator, logger.Named("headless"))
	}

	return fetcher.NewStrategy(staticFetcher, rendered, logger.Named("strategy"))
}
