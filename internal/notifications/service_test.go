package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hillview/internal/config"
	"hillview/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyQueueDrained(context.Background(), 3, 0, time.Second); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "queue started",
			notify: func(svc notifications.Service) error {
				return svc.NotifyQueueStarted(context.Background(), 4)
			},
			expectTitle:   "Hillview - Uploads Started",
			expectMessage: "Uploading 4 queued capture(s)",
			expectTags:    "hillview,queue,started",
		},
		{
			name: "queue drained",
			notify: func(svc notifications.Service) error {
				return svc.NotifyQueueDrained(context.Background(), 5, 0, 90*time.Second)
			},
			expectTitle:   "Hillview - Queue Drained",
			expectMessage: "Uploaded 5 capture(s), 0 failed in 1m30s",
			expectTags:    "hillview,queue,drained",
		},
		{
			name: "queue drained with failures",
			notify: func(svc notifications.Service) error {
				return svc.NotifyQueueDrained(context.Background(), 2, 1, 10*time.Second)
			},
			expectTitle:    "Hillview - Queue Drained",
			expectMessage:  "Uploaded 2 capture(s), 1 failed in 10s",
			expectTags:     "hillview,queue,drained",
			expectPriority: "high",
		},
		{
			name: "upload failed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyUploadFailed(context.Background(), "capture_1712000000000", "client error: backend rejected upload with 422")
			},
			expectTitle:    "Hillview - Upload Failed",
			expectMessage:  "Capture capture_1712000000000 failed permanently: client error: backend rejected upload with 422",
			expectTags:     "hillview,upload,failed",
			expectPriority: "high",
		},
		{
			name: "test notification",
			notify: func(svc notifications.Service) error {
				return svc.TestNotification(context.Background())
			},
			expectTitle:   "Hillview - Test",
			expectMessage: "Test notification from Hillview",
			expectTags:    "hillview,test",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Queue = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Queue = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	if err := svc.NotifyQueueStarted(context.Background(), 1); err != nil {
		t.Fatalf("expected no error for suppressed queue event, got %v", err)
	}
	if err := svc.NotifyUploadFailed(context.Background(), "capture_1", "network error"); err != nil {
		t.Fatalf("expected no error for suppressed error event, got %v", err)
	}
}
