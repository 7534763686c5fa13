package pushover

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"soPushBot/internal/domain/apperror"
	"soPushBot/internal/domain/entity"
)

func newTestRepository(apiURL, device string) *notificationRepository {
	return NewNotificationRepository(Config{
		APIURL:  apiURL,
		Token:   "app-token",
		User:    "user-key",
		Device:  device,
		Timeout: 5 * time.Second,
	}).(*notificationRepository)
}

func testNotification(withMetadata bool) *entity.Notification {
	q := entity.NewQuestion("100", "A &amp; B", "https://stackoverflow.com/q/100", time.Unix(1000, 0))
	if withMetadata {
		q = q.WithMetadata(&entity.QuestionMetadata{HasCounts: true, AnswerCount: 2, HasAcceptedAnswer: true})
	}
	return entity.NewNotificationFromQuestion(q, "")
}

func TestNotificationRepository_Send_Success(t *testing.T) {
	var received url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content-type: %s", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		received = r.PostForm

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":1,"request":"647d2300-702c-4b38-8b2f-d56326ae460b"}`))
	}))
	defer server.Close()

	repo := newTestRepository(server.URL, "")
	if err := repo.Send(context.Background(), testNotification(true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"token":         "app-token",
		"user":          "user-key",
		"message":       "A & B",
		"title":         entity.DefaultNotificationTitle,
		"url":           "https://stackoverflow.com/q/100",
		"answer_count":  "2",
		"have_accepted": "true",
	}
	for k, v := range want {
		if got := received.Get(k); got != v {
			t.Errorf("expected %s=%q, got %q", k, v, got)
		}
	}
	if received.Has("device") {
		t.Error("expected no device field when none is configured")
	}
}

func TestNotificationRepository_Send_OptionalFields(t *testing.T) {
	var received url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		received = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newTestRepository(server.URL, "phone")
	if err := repo.Send(context.Background(), testNotification(false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received.Has("answer_count") || received.Has("have_accepted") {
		t.Errorf("expected no metadata fields, got %v", received)
	}
	if got := received.Get("device"); got != "phone" {
		t.Errorf("expected device 'phone', got %q", got)
	}
}

func TestNotificationRepository_Send_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "invalid token",
			status:      http.StatusBadRequest,
			body:        `{"token":"invalid","errors":["application token is invalid"],"status":0,"request":"x"}`,
			wantMessage: "application token is invalid",
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			body:        "Internal Server Error",
			wantMessage: "non-OK status: 500",
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"errors":["monthly limit reached"],"status":0}`,
			wantMessage: "monthly limit reached",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			repo := newTestRepository(server.URL, "")
			err := repo.Send(context.Background(), testNotification(true))

			var notifyErr *apperror.NotifyError
			if !errors.As(err, &notifyErr) {
				t.Fatalf("expected NotifyError, got %v", err)
			}
			if notifyErr.StatusCode != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, notifyErr.StatusCode)
			}
			if notifyErr.QuestionID != "100" {
				t.Errorf("expected question id '100', got %q", notifyErr.QuestionID)
			}
			if !strings.Contains(err.Error(), tc.wantMessage) {
				t.Errorf("expected error to contain %q, got %q", tc.wantMessage, err.Error())
			}
			if apperror.IsFatal(err) {
				t.Error("notify errors must not be fatal")
			}
		})
	}
}

func TestNotificationRepository_Send_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newTestRepository(server.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := repo.Send(ctx, testNotification(true))
	var notifyErr *apperror.NotifyError
	if !errors.As(err, &notifyErr) {
		t.Fatalf("expected NotifyError due to context cancellation, got %v", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Errorf("expected 'hé', got %q", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("expected unchanged string, got %q", got)
	}
}
