package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"soPushBot/internal/application"
	"soPushBot/internal/domain/repository"
	"soPushBot/internal/infrastructure/html"
	"soPushBot/internal/infrastructure/lock"
	"soPushBot/internal/infrastructure/logging"
	"soPushBot/internal/infrastructure/pushover"
	"soPushBot/internal/infrastructure/rss"
	"soPushBot/internal/infrastructure/scraper"
	"soPushBot/internal/infrastructure/stackexchange"
	"soPushBot/internal/infrastructure/storage"
	"soPushBot/internal/interfaces/config"
)

type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	out    io.Writer

	// memory outlives single cycles so watch keeps its dedup state.
	memory repository.CacheRepository
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		out:    cmd.OutOrStdout(),
	}
	if cfg.CacheDriver == storage.DriverMemory {
		a.memory = storage.NewMemoryCacheRepository()
	}
	return a, nil
}

func (a *app) questionRepository() repository.QuestionRepository {
	logger := a.logger.With().Str("component", "fetcher").Str("mode", a.cfg.SourceMode).Logger()

	switch a.cfg.SourceMode {
	case config.SourceModeScrape:
		return scraper.NewQuestionScraper(scraper.Config{
			BaseURL:   a.cfg.SiteBaseURL,
			Timeout:   a.cfg.HTTPTimeout,
			UserAgent: html.DefaultUserAgent,
		})
	case config.SourceModeFeed:
		return rss.NewFeedRepository(rss.Config{
			BaseURL:   a.cfg.SiteBaseURL,
			Timeout:   a.cfg.HTTPTimeout,
			UserAgent: html.DefaultUserAgent,
		})
	default:
		return stackexchange.NewQuestionRepository(stackexchange.Config{
			BaseURL:  a.cfg.APIBaseURL,
			Site:     a.cfg.Site,
			Key:      a.cfg.StackAppsKey,
			TagMatch: a.cfg.TagMatch,
			Timeout:  a.cfg.HTTPTimeout,
			Logger:   logger,
		})
	}
}

func (a *app) service(cache repository.CacheRepository, dryRun bool) *application.QuestionNotifyService {
	notifier := pushover.NewNotificationRepository(pushover.Config{
		APIURL:  a.cfg.PushoverAPIURL,
		Token:   a.cfg.PushoverToken,
		User:    a.cfg.PushoverUser,
		Device:  a.cfg.PushoverDevice,
		Timeout: a.cfg.HTTPTimeout,
	})

	return application.NewQuestionNotifyService(
		a.questionRepository(),
		notifier,
		cache,
		application.Options{
			Tags:        a.cfg.Tags,
			PageSize:    a.cfg.PageSize,
			Retention:   a.cfg.Retention,
			NotifyTitle: a.cfg.NotifyTitle,
			DryRun:      dryRun,
			Logger:      a.logger.With().Str("component", "service").Logger(),
		},
	)
}

// withLock opens the cache only after the run lock is held and hands it to fn.
// The cache is closed before the lock is released.
func (a *app) withLock(fn func(cache repository.CacheRepository) error) error {
	l, err := lock.Acquire(a.cfg.LockPath, a.cfg.LockStaleAfter)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			a.logger.Warn().Err(err).Str("lock_path", l.Path()).Msg("failed to release lock")
		}
	}()

	if a.memory != nil {
		return fn(a.memory)
	}

	cache, closer, err := storage.Open(storage.Config{Driver: a.cfg.CacheDriver, Path: a.cfg.CachePath})
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			a.logger.Warn().Err(err).Str("cache_path", a.cfg.CachePath).Msg("failed to close cache")
		}
	}()
	return fn(cache)
}

// runCycle executes one locked cycle and prints the summary line.
func (a *app) runCycle(ctx context.Context, dryRun bool) error {
	return a.withLock(func(cache repository.CacheRepository) error {
		report, err := a.service(cache, dryRun).Run(ctx)
		if err != nil {
			return err
		}

		a.logger.Info().
			Str("run_id", report.RunID).
			Int("fetched", report.Fetched).
			Int("new", report.New).
			Int("notified", report.Notified).
			Int("failed", report.Failed).
			Int("evicted", report.Evicted).
			Int("cached", report.Cached).
			Bool("dry_run", report.DryRun).
			Msg("run complete")
		fmt.Fprintf(a.out, "new=%d notified=%d failed=%d\n", report.New, report.Notified, report.Failed)
		return nil
	})
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	return a.runCycle(cmd.Context(), flagDryRun)
}
