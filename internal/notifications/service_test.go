package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelsmith/internal/notifications"
	"reelsmith/internal/testsupport"
)

type captured struct {
	title    string
	priority string
	body     string
}

func newCapturingServer(t *testing.T) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""

	svc := notifications.NewService(cfg)
	if err := svc.NotifyReelReady(context.Background(), "Night Harbor", "https://blobs.test/reel.mp4"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNotifyReelReadyPostsToNtfy(t *testing.T) {
	server, got := newCapturingServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Assembly = true

	svc := notifications.NewService(cfg)
	if err := svc.NotifyReelReady(context.Background(), "Night Harbor", "https://blobs.test/reel.mp4"); err != nil {
		t.Fatalf("NotifyReelReady: %v", err)
	}

	if len(*got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(*got))
	}
	first := (*got)[0]
	if first.title != "Reelsmith - Reel Ready" {
		t.Fatalf("unexpected title %q", first.title)
	}
	if first.priority != "high" {
		t.Fatalf("expected high priority, got %q", first.priority)
	}
}

func TestTogglesSuppressCategories(t *testing.T) {
	server, got := newCapturingServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Video = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(cfg)
	ctx := context.Background()
	if err := svc.NotifyVideoFailed(ctx, "Night Harbor", "Arrival", "timeout"); err != nil {
		t.Fatalf("NotifyVideoFailed: %v", err)
	}
	if err := svc.NotifyError(ctx, io.ErrUnexpectedEOF, "assembly"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}

	if len(*got) != 0 {
		t.Fatalf("expected suppressed notifications, got %d deliveries", len(*got))
	}
}

func TestNotifyErrorSurfacesServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic over quota", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Errors = true

	svc := notifications.NewService(cfg)
	if err := svc.NotifyError(context.Background(), io.ErrUnexpectedEOF, "parse"); err == nil {
		t.Fatal("expected error for non-2xx ntfy response")
	}
}

func TestTestNotificationAlwaysSends(t *testing.T) {
	server, got := newCapturingServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(cfg)
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if len(*got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(*got))
	}
}
