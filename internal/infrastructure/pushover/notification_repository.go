package pushover

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

	"soPushBot/internal/domain/apperror"
	"soPushBot/internal/domain/entity"
	"soPushBot/internal/domain/repository"
)

const (
	DefaultAPIURL = "https://api.pushover.net/1/messages.json"

	maxMessageRunes = 1024
	maxTitleRunes   = 250
	maxErrorBytes   = int64(64 * 1024)
)

type Config struct {
	APIURL  string
	Token   string
	User    string
	Device  string
	Timeout time.Duration
}

type notificationRepository struct {
	apiURL string
	token  string
	user   string
	device string
	client *http.Client
}

type apiResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

func NewNotificationRepository(cfg Config) repository.NotificationRepository {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &notificationRepository{
		apiURL: apiURL,
		token:  cfg.Token,
		user:   cfg.User,
		device: cfg.Device,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *notificationRepository) Send(ctx context.Context, n *entity.Notification) error {
	form := url.Values{}
	form.Set("token", r.token)
	form.Set("user", r.user)
	form.Set("message", truncateRunes(n.Message, maxMessageRunes))
	form.Set("title", truncateRunes(n.Title, maxTitleRunes))
	form.Set("url", n.URL)
	if n.AnswerCount != nil {
		form.Set("answer_count", strconv.Itoa(*n.AnswerCount))
	}
	if n.HasAccepted != nil {
		form.Set("have_accepted", strconv.FormatBool(*n.HasAccepted))
	}
	if r.device != "" {
		form.Set("device", r.device)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &apperror.NotifyError{QuestionID: n.QuestionID, Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return &apperror.NotifyError{QuestionID: n.QuestionID, Err: fmt.Errorf("failed to send request to Pushover API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return &apperror.NotifyError{
		QuestionID: n.QuestionID,
		StatusCode: resp.StatusCode,
		Err:        responseError(resp),
	}
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		return fmt.Errorf("Pushover API returned %d: %s", resp.StatusCode, strings.Join(payload.Errors, "; "))
	}
	return fmt.Errorf("Pushover API returned non-OK status: %d", resp.StatusCode)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
