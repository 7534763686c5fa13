package scraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"soPushBot/internal/domain/apperror"
	"soPushBot/internal/domain/entity"
	"soPushBot/internal/domain/repository"
	"soPushBot/internal/infrastructure/html"
)

const (
	DefaultBaseURL = "https://stackoverflow.com"
	postTimeLayout = "2006-01-02 15:04:05Z"
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// questionScraper reads the "Newest" tab of each tag page. The page only
// lists the most recent questions, so anything that scrolls off between two
// runs is never seen.
type questionScraper struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

func NewQuestionScraper(cfg Config) repository.QuestionRepository {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &questionScraper{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
	}
}

func (s *questionScraper) Fetch(ctx context.Context, query entity.QuestionQuery) ([]*entity.Question, error) {
	var all []*entity.Question

	for _, tag := range query.Tags {
		source := "scrape:" + tag
		pageURL := fmt.Sprintf("%s/questions/tagged/%s?tab=Newest", s.baseURL, url.PathEscape(tag))

		doc, err := html.FetchDocument(ctx, s.client, pageURL, s.userAgent)
		if err != nil {
			fetchErr := &apperror.FetchError{Source: source, Err: err}
			var statusErr *html.StatusError
			if errors.As(err, &statusErr) {
				fetchErr.StatusCode = statusErr.StatusCode
			}
			return nil, fetchErr
		}

		questions, err := parseQuestionList(doc, s.baseURL, query.PageSize)
		if err != nil {
			return nil, &apperror.FetchError{Source: source, Err: err}
		}
		all = append(all, questions...)
	}

	return entity.UniqueByID(all), nil
}

func parseQuestionList(doc *goquery.Document, baseURL string, limit int) ([]*entity.Question, error) {
	list := doc.Find("#questions")
	if list.Length() == 0 {
		return nil, errors.New("question list not found in page")
	}

	blocks := list.ChildrenFiltered("div[data-post-id]")
	if limit > 0 && blocks.Length() > limit {
		blocks = blocks.Slice(0, limit)
	}

	questions := make([]*entity.Question, 0, blocks.Length())
	var parseErr error
	blocks.EachWithBreak(func(i int, block *goquery.Selection) bool {
		q, err := parseQuestion(block, baseURL)
		if err != nil {
			parseErr = fmt.Errorf("question block %d: %w", i, err)
			return false
		}
		questions = append(questions, q)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return questions, nil
}

func parseQuestion(block *goquery.Selection, baseURL string) (*entity.Question, error) {
	id := strings.TrimSpace(block.AttrOr("data-post-id", ""))
	if id == "" {
		return nil, errors.New("missing data-post-id")
	}

	// vote, answer and view counts always come in this order
	stats := block.Find("span.s-post-summary--stats-item-number")
	if stats.Length() < 3 {
		return nil, fmt.Errorf("expected 3 stat counters, found %d", stats.Length())
	}
	var counts [3]int
	for i := range counts {
		n, err := parseCount(stats.Eq(i).Text())
		if err != nil {
			return nil, fmt.Errorf("stat counter %d: %w", i, err)
		}
		counts[i] = n
	}

	title := strings.TrimSpace(block.Find("h3.s-post-summary--content-title").First().Text())
	href, ok := block.Find("h3.s-post-summary--content-title > a").First().Attr("href")
	if !ok || title == "" {
		return nil, errors.New("missing title link")
	}
	link, err := absoluteURL(baseURL, href)
	if err != nil {
		return nil, err
	}

	postTime, ok := block.Find("time.s-user-card--time > span").First().Attr("title")
	if !ok {
		return nil, errors.New("missing post time")
	}
	createdAt, err := time.Parse(postTimeLayout, strings.TrimSpace(postTime))
	if err != nil {
		return nil, fmt.Errorf("invalid post time %q: %w", postTime, err)
	}

	var tags []string
	block.Find("div.s-post-summary--meta-tags li").Each(func(_ int, li *goquery.Selection) {
		if tag := strings.TrimSpace(li.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})

	meta := &entity.QuestionMetadata{
		HasCounts:         true,
		VoteCount:         counts[0],
		AnswerCount:       counts[1],
		ViewCount:         counts[2],
		Tags:              tags,
		PostedAt:          createdAt,
		HasAcceptedAnswer: block.Find("div.s-post-summary--stats-item.has-answers.has-accepted-answer").Length() > 0,
	}

	// anonymous and deleted users have no profile anchor
	if author := block.Find("div.s-user-card--info > div > a").First(); author.Length() > 0 {
		authorHref := author.AttrOr("href", "")
		meta.AuthorName = strings.TrimSpace(author.Text())
		if parts := strings.Split(authorHref, "/"); len(parts) > 2 {
			meta.AuthorID = parts[2]
		}
		if authorHref != "" {
			if profile, err := absoluteURL(baseURL, authorHref); err == nil {
				meta.AuthorLink = profile
			}
		}
	}

	return entity.NewQuestion(id, entity.EncodeTitle(title), link, createdAt).WithMetadata(meta), nil
}

// parseCount understands the abbreviated counters the listing renders,
// e.g. "12", "-3", "1,024", "1.2k", "3m".
func parseCount(text string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, errors.New("empty counter")
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}

	if multiplier == 1 {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid counter %q", text)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter %q", text)
	}
	return int(math.Round(f * multiplier)), nil
}

func absoluteURL(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}
