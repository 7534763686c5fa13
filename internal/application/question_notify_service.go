package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"soPushBot/internal/domain/entity"
	"soPushBot/internal/domain/repository"
)

type Options struct {
	Tags        []string
	PageSize    int
	Retention   time.Duration
	NotifyTitle string
	DryRun      bool
	Now         func() time.Time
	Logger      zerolog.Logger
}

type RunReport struct {
	RunID    string
	Fetched  int
	Stale    int
	Seen     int
	New      int
	Notified int
	Failed   int
	Evicted  int
	Cached   int
	DryRun   bool
}

type QuestionNotifyService struct {
	questionRepo     repository.QuestionRepository
	notificationRepo repository.NotificationRepository
	cacheRepo        repository.CacheRepository
	opts             Options
}

func NewQuestionNotifyService(
	questionRepo repository.QuestionRepository,
	notificationRepo repository.NotificationRepository,
	cacheRepo repository.CacheRepository,
	opts Options,
) *QuestionNotifyService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NotifyTitle == "" {
		opts.NotifyTitle = entity.DefaultNotificationTitle
	}
	return &QuestionNotifyService{
		questionRepo:     questionRepo,
		notificationRepo: notificationRepo,
		cacheRepo:        cacheRepo,
		opts:             opts,
	}
}

// Run executes one fetch, filter, notify and persist cycle. Any error it
// returns happened before the cache was written, so the previous state on
// disk is untouched. Per-question notify failures are counted in the report
// instead.
func (s *QuestionNotifyService) Run(ctx context.Context) (*RunReport, error) {
	if s.opts.Retention <= 0 {
		return nil, errors.New("retention must be positive")
	}

	now := s.opts.Now()
	cutoff := now.Add(-s.opts.Retention)
	report := &RunReport{RunID: uuid.NewString(), DryRun: s.opts.DryRun}
	log := s.opts.Logger.With().Str("run_id", report.RunID).Logger()

	store, err := s.cacheRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	log.Debug().Str("state", "loaded").Int("cached", store.Len()).Msg("cache loaded")

	query := entity.QuestionQuery{
		Tags:     s.opts.Tags,
		FromDate: cutoff,
		PageSize: s.opts.PageSize,
	}
	if err := query.Validate(now); err != nil {
		return nil, fmt.Errorf("invalid question query: %w", err)
	}

	questions, err := s.questionRepo.Fetch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch questions: %w", err)
	}
	report.Fetched = len(questions)
	log.Debug().Str("state", "fetched").Int("fetched", len(questions)).Msg("questions fetched")

	newQuestions := s.partition(store, entity.UniqueByID(questions), cutoff, report)
	entity.SortByCreatedAsc(newQuestions)
	report.New = len(newQuestions)
	log.Debug().Str("state", "partitioned").
		Int("new", report.New).
		Int("seen", report.Seen).
		Int("stale", report.Stale).
		Msg("questions partitioned")

	if s.opts.DryRun {
		for _, q := range newQuestions {
			log.Info().Str("question_id", q.ID).Str("title", entity.DecodeTitle(q.Title)).Msg("would notify")
		}
		report.Cached = store.Len()
		return report, nil
	}

	for i, q := range newQuestions {
		// mark before notify: a question is pushed at most once
		store.Record(q.ID, q.CreatedAt)

		notification := entity.NewNotificationFromQuestion(q, s.opts.NotifyTitle)
		if err := s.notificationRepo.Send(ctx, notification); err != nil {
			report.Failed++
			log.Error().Err(err).
				Str("state", "dispatching").
				Int("index", i).
				Str("question_id", q.ID).
				Msg("failed to send notification")
			continue
		}
		report.Notified++
		log.Info().Str("question_id", q.ID).Str("title", notification.Message).Msg("notification sent")
	}

	report.Evicted = store.Evict(now, s.opts.Retention)
	log.Debug().Str("state", "evicted").Int("evicted", report.Evicted).Msg("stale entries evicted")

	if err := s.cacheRepo.Persist(ctx, store); err != nil {
		return report, fmt.Errorf("failed to persist cache: %w", err)
	}
	report.Cached = store.Len()
	log.Debug().Str("state", "persisted").Int("cached", report.Cached).Msg("cache persisted")

	return report, nil
}

// partition returns the questions that are absent from store, in upstream
// order. Questions created before cutoff are skipped since eviction would
// drop them again at the end of the run.
func (s *QuestionNotifyService) partition(store *entity.CacheStore, questions []*entity.Question, cutoff time.Time, report *RunReport) []*entity.Question {
	var fresh []*entity.Question
	for _, q := range questions {
		if q.IsOlderThan(cutoff) {
			report.Stale++
			continue
		}
		if !store.IsNew(q.ID) {
			report.Seen++
			continue
		}
		fresh = append(fresh, q)
	}
	return fresh
}
