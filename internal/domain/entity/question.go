package entity

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Question struct {
	ID        string
	Title     string
	Link      string
	CreatedAt time.Time
	Metadata  *QuestionMetadata
}

// QuestionMetadata is only filled by sources that expose listing details.
// HasCounts is false when the source carries no vote or answer counters.
type QuestionMetadata struct {
	HasCounts         bool
	VoteCount         int
	AnswerCount       int
	ViewCount         int
	Tags              []string
	AuthorID          string
	AuthorName        string
	AuthorLink        string
	PostedAt          time.Time
	HasAcceptedAnswer bool
}

func NewQuestion(id, title, link string, createdAt time.Time) *Question {
	return &Question{
		ID:        id,
		Title:     title,
		Link:      link,
		CreatedAt: createdAt.Truncate(time.Second),
	}
}

func (q *Question) WithMetadata(meta *QuestionMetadata) *Question {
	q.Metadata = meta
	return q
}

func (q *Question) IsOlderThan(t time.Time) bool {
	return q.CreatedAt.Before(t)
}

type QuestionQuery struct {
	Tags     []string
	FromDate time.Time
	PageSize int
}

func (q QuestionQuery) Validate(now time.Time) error {
	if len(q.Tags) == 0 {
		return errors.New("at least one tag is required")
	}
	for i, tag := range q.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("tag %d is blank", i)
		}
	}
	if q.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", q.PageSize)
	}
	if q.FromDate.After(now) {
		return fmt.Errorf("from date %s is in the future", q.FromDate.UTC().Format(time.RFC3339))
	}
	return nil
}

// SortByCreatedAsc orders questions oldest first. Equal timestamps fall back
// to the numeric id so the dispatch order never depends on upstream order.
func SortByCreatedAsc(questions []*Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		a, b := questions[i], questions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		ai, aErr := strconv.ParseInt(a.ID, 10, 64)
		bi, bErr := strconv.ParseInt(b.ID, 10, 64)
		if aErr == nil && bErr == nil {
			return ai < bi
		}
		return a.ID < b.ID
	})
}

// UniqueByID drops repeated ids, keeping the first occurrence.
func UniqueByID(questions []*Question) []*Question {
	seen := make(map[string]struct{}, len(questions))
	out := questions[:0:0]
	for _, q := range questions {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	return out
}
