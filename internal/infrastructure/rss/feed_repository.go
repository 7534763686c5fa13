package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"soPushBot/internal/domain/apperror"
	"soPushBot/internal/domain/entity"
	"soPushBot/internal/domain/repository"

	"github.com/mmcdole/gofeed"
)

const DefaultBaseURL = "https://stackoverflow.com"

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type feedRepository struct {
	baseURL string
	parser  *gofeed.Parser
}

// NewFeedRepository reads the per-tag Atom feeds.
func NewFeedRepository(cfg Config) repository.QuestionRepository {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	if cfg.UserAgent != "" {
		parser.UserAgent = cfg.UserAgent
	}

	return &feedRepository{
		baseURL: baseURL,
		parser:  parser,
	}
}

func (r *feedRepository) Fetch(ctx context.Context, query entity.QuestionQuery) ([]*entity.Question, error) {
	var all []*entity.Question

	for _, tag := range query.Tags {
		source := "feed:" + tag
		feedURL := fmt.Sprintf("%s/feeds/tag/%s", r.baseURL, url.PathEscape(tag))

		feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			fetchErr := &apperror.FetchError{Source: source, Err: fmt.Errorf("failed to parse feed: %w", err)}
			var httpErr gofeed.HTTPError
			if errors.As(err, &httpErr) {
				fetchErr.StatusCode = httpErr.StatusCode
			}
			return nil, fetchErr
		}

		questions := make([]*entity.Question, 0, len(feed.Items))
		for _, item := range feed.Items {
			if query.PageSize > 0 && len(questions) >= query.PageSize {
				break
			}

			published := item.PublishedParsed
			if published == nil {
				published = item.UpdatedParsed
			}
			if published == nil {
				return nil, &apperror.FetchError{Source: source, Err: fmt.Errorf("entry %q has no published time", item.GUID)}
			}
			if published.Before(query.FromDate) {
				continue
			}

			id := questionID(item.GUID)
			if id == "" {
				id = questionID(item.Link)
			}
			if id == "" {
				return nil, &apperror.FetchError{Source: source, Err: fmt.Errorf("entry %q has no question id", item.GUID)}
			}

			questions = append(questions, toQuestion(id, item, *published))
		}
		all = append(all, questions...)
	}

	return entity.UniqueByID(all), nil
}

func toQuestion(id string, item *gofeed.Item, published time.Time) *entity.Question {
	meta := &entity.QuestionMetadata{
		Tags:     item.Categories,
		PostedAt: published.UTC(),
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		meta.AuthorName = item.Authors[0].Name
	} else if item.Author != nil {
		meta.AuthorName = item.Author.Name
	}

	link := item.Link
	if link == "" {
		link = item.GUID
	}

	return entity.NewQuestion(id, entity.EncodeTitle(item.Title), link, published).WithMetadata(meta)
}

// questionID returns the numeric question id from a feed GUID or link,
// e.g. "https://stackoverflow.com/q/123" or ".../questions/123/slug".
func questionID(ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if _, err := strconv.ParseUint(segments[i], 10, 64); err == nil {
			return segments[i]
		}
	}
	return ""
}
