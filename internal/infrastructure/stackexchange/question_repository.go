package stackexchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"soPushBot/internal/domain/apperror"
	"soPushBot/internal/domain/entity"
	"soPushBot/internal/domain/repository"
)

const (
	DefaultBaseURL = "https://api.stackexchange.com/2.3"
	DefaultSite    = "stackoverflow"

	TagMatchAny = "any"
	TagMatchAll = "all"

	maxResponseBytes = int64(4 * 1024 * 1024)
)

type Config struct {
	BaseURL  string
	Site     string
	Key      string
	TagMatch string
	Timeout  time.Duration
	Logger   zerolog.Logger
}

type questionsResponse struct {
	Items          []apiQuestion `json:"items"`
	HasMore        bool          `json:"has_more"`
	QuotaMax       int           `json:"quota_max"`
	QuotaRemaining int           `json:"quota_remaining"`
	Backoff        int           `json:"backoff"`
	ErrorID        int           `json:"error_id"`
	ErrorName      string        `json:"error_name"`
	ErrorMessage   string        `json:"error_message"`
}

type apiQuestion struct {
	QuestionID       int64     `json:"question_id"`
	Title            string    `json:"title"`
	Link             string    `json:"link"`
	CreationDate     int64     `json:"creation_date"`
	Score            int       `json:"score"`
	AnswerCount      int       `json:"answer_count"`
	ViewCount        int       `json:"view_count"`
	Tags             []string  `json:"tags"`
	AcceptedAnswerID *int64    `json:"accepted_answer_id"`
	Owner            *apiOwner `json:"owner"`
}

type apiOwner struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Link        string `json:"link"`
}

type questionRepository struct {
	baseURL  string
	site     string
	key      string
	tagMatch string
	client   *http.Client
	logger   zerolog.Logger
}

func NewQuestionRepository(cfg Config) repository.QuestionRepository {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	site := cfg.Site
	if site == "" {
		site = DefaultSite
	}
	tagMatch := strings.ToLower(cfg.TagMatch)
	if tagMatch == "" {
		tagMatch = TagMatchAny
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &questionRepository{
		baseURL:  baseURL,
		site:     site,
		key:      cfg.Key,
		tagMatch: tagMatch,
		client:   &http.Client{Timeout: timeout},
		logger:   cfg.Logger,
	}
}

// Fetch queries /questions once per tag, or once for all tags joined with
// ";" when every tag has to match.
func (r *questionRepository) Fetch(ctx context.Context, query entity.QuestionQuery) ([]*entity.Question, error) {
	var groups [][]string
	if r.tagMatch == TagMatchAll {
		groups = [][]string{query.Tags}
	} else {
		for _, tag := range query.Tags {
			groups = append(groups, []string{tag})
		}
	}

	var all []*entity.Question
	for _, tags := range groups {
		questions, err := r.fetchTagged(ctx, strings.Join(tags, ";"), query)
		if err != nil {
			return nil, err
		}
		all = append(all, questions...)
	}

	return entity.UniqueByID(all), nil
}

func (r *questionRepository) fetchTagged(ctx context.Context, tagged string, query entity.QuestionQuery) ([]*entity.Question, error) {
	source := "api:" + tagged

	params := url.Values{}
	params.Set("order", "desc")
	params.Set("sort", "creation")
	params.Set("site", r.site)
	params.Set("pagesize", strconv.Itoa(query.PageSize))
	params.Set("fromdate", strconv.FormatInt(query.FromDate.Unix(), 10))
	params.Set("tagged", tagged)
	if r.key != "" {
		params.Set("key", r.key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/questions?"+params.Encode(), nil)
	if err != nil {
		return nil, &apperror.FetchError{Source: source, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &apperror.FetchError{Source: source, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &apperror.FetchError{Source: source, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var payload questionsResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && payload.ErrorID != 0 {
			return nil, &apperror.FetchError{Source: source, StatusCode: resp.StatusCode, Err: apiError(payload)}
		}
		return nil, &apperror.FetchError{Source: source, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", resp.Status)}
	}
	if decodeErr != nil {
		return nil, &apperror.FetchError{Source: source, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", decodeErr)}
	}
	if payload.ErrorID != 0 {
		return nil, &apperror.FetchError{Source: source, StatusCode: resp.StatusCode, Err: apiError(payload)}
	}

	event := r.logger.Debug()
	if payload.Backoff > 0 {
		event = r.logger.Warn()
	}
	event.
		Str("tagged", tagged).
		Int("items", len(payload.Items)).
		Int("quota_remaining", payload.QuotaRemaining).
		Int("backoff", payload.Backoff).
		Bool("has_more", payload.HasMore).
		Msg("stackexchange response")

	questions := make([]*entity.Question, 0, len(payload.Items))
	for i, item := range payload.Items {
		q, err := item.toQuestion()
		if err != nil {
			return nil, &apperror.FetchError{Source: source, StatusCode: resp.StatusCode, Err: fmt.Errorf("item %d: %w", i, err)}
		}
		questions = append(questions, q)
	}

	return questions, nil
}

func (q apiQuestion) toQuestion() (*entity.Question, error) {
	if q.QuestionID <= 0 {
		return nil, fmt.Errorf("missing question_id")
	}
	if q.Title == "" || q.Link == "" {
		return nil, fmt.Errorf("question %d is missing title or link", q.QuestionID)
	}
	if q.CreationDate <= 0 {
		return nil, fmt.Errorf("question %d is missing creation_date", q.QuestionID)
	}

	createdAt := time.Unix(q.CreationDate, 0).UTC()
	meta := &entity.QuestionMetadata{
		HasCounts:         true,
		VoteCount:         q.Score,
		AnswerCount:       q.AnswerCount,
		ViewCount:         q.ViewCount,
		Tags:              q.Tags,
		PostedAt:          createdAt,
		HasAcceptedAnswer: q.AcceptedAnswerID != nil,
	}
	if q.Owner != nil {
		if q.Owner.UserID != 0 {
			meta.AuthorID = strconv.FormatInt(q.Owner.UserID, 10)
		}
		meta.AuthorName = entity.DecodeTitle(q.Owner.DisplayName)
		meta.AuthorLink = q.Owner.Link
	}

	id := strconv.FormatInt(q.QuestionID, 10)
	return entity.NewQuestion(id, q.Title, q.Link, createdAt).WithMetadata(meta), nil
}

func apiError(payload questionsResponse) error {
	return fmt.Errorf("api error %d (%s): %s", payload.ErrorID, payload.ErrorName, payload.ErrorMessage)
}
