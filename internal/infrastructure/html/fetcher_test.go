package html

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchDocument(t *testing.T) {
	testCases := []struct {
		name       string
		status     int
		body       string
		wantTitle  string
		wantStatus int
	}{
		{
			name:      "ok",
			status:    http.StatusOK,
			body:      "<html><head><title>Newest Questions</title></head><body></body></html>",
			wantTitle: "Newest Questions",
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			body:       "oops",
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "not found",
			status:     http.StatusNotFound,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var gotUA string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUA = r.Header.Get("User-Agent")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := &http.Client{Timeout: 5 * time.Second}
			doc, err := FetchDocument(context.Background(), client, server.URL, "")

			if tc.wantStatus != 0 {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("expected StatusError, got %v", err)
				}
				if statusErr.StatusCode != tc.wantStatus {
					t.Errorf("expected status %d, got %d", tc.wantStatus, statusErr.StatusCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.TrimSpace(doc.Find("title").Text()); got != tc.wantTitle {
				t.Errorf("expected title %q, got %q", tc.wantTitle, got)
			}
			if gotUA != DefaultUserAgent {
				t.Errorf("expected default user agent, got %q", gotUA)
			}
		})
	}
}

func TestFetchDocument_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := &http.Client{Timeout: 20 * time.Millisecond}
	if _, err := FetchDocument(context.Background(), client, server.URL, "test-agent"); err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}
