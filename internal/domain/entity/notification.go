package entity

import (
	"strings"

	"golang.org/x/net/html"
)

const DefaultNotificationTitle = "StackOverflow: new question"

type Notification struct {
	QuestionID  string
	Title       string
	Message     string
	URL         string
	AnswerCount *int
	HasAccepted *bool
}

// NewNotificationFromQuestion builds the push for q. Upstream titles arrive
// HTML-escaped ("A &amp; B"), the pushed message is plain text.
func NewNotificationFromQuestion(q *Question, title string) *Notification {
	if title == "" {
		title = DefaultNotificationTitle
	}
	n := &Notification{
		QuestionID: q.ID,
		Title:      title,
		Message:    DecodeTitle(q.Title),
		URL:        q.Link,
	}
	if q.Metadata != nil && q.Metadata.HasCounts {
		answers := q.Metadata.AnswerCount
		accepted := q.Metadata.HasAcceptedAnswer
		n.AnswerCount = &answers
		n.HasAccepted = &accepted
	}
	return n
}

// EncodeTitle escapes a title that a parser already decoded, so every source
// hands over titles in the upstream encoded form.
func EncodeTitle(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

func DecodeTitle(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}
