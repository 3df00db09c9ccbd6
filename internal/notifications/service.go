package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
)

const userAgent = "Reelsmith/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyParseComplete(ctx context.Context, projectTitle string, sceneCount int) error
	NotifyParseFailed(ctx context.Context, projectTitle, message string) error
	NotifyBibleReady(ctx context.Context, projectTitle string) error
	NotifyScenesApproved(ctx context.Context, projectTitle string, sceneCount int) error
	NotifyVideoFailed(ctx context.Context, projectTitle, sceneTitle, message string) error
	NotifyReelReady(ctx context.Context, projectTitle, videoURL string) error
	NotifyReelFailed(ctx context.Context, projectTitle, message string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		toggles:  cfg.Notifications,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	toggles  config.Notifications
	client   *http.Client
}

func (n *ntfyService) NotifyParseComplete(ctx context.Context, projectTitle string, sceneCount int) error {
	if !n.toggles.Parsing {
		return nil
	}
	data := payload{
		title:   "Reelsmith - Parse Complete",
		message: fmt.Sprintf("Decomposed %s into %d scenes", strings.TrimSpace(projectTitle), sceneCount),
		tags:    []string{"reelsmith", "parse", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyParseFailed(ctx context.Context, projectTitle, message string) error {
	if !n.toggles.Parsing {
		return nil
	}
	data := payload{
		title:    "Reelsmith - Parse Failed",
		message:  fmt.Sprintf("Could not decompose %s: %s", strings.TrimSpace(projectTitle), strings.TrimSpace(message)),
		tags:     []string{"reelsmith", "parse", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBibleReady(ctx context.Context, projectTitle string) error {
	if !n.toggles.Bible {
		return nil
	}
	data := payload{
		title:   "Reelsmith - Bible Ready",
		message: fmt.Sprintf("Reference images for %s await review", strings.TrimSpace(projectTitle)),
		tags:    []string{"reelsmith", "bible", "review"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyScenesApproved(ctx context.Context, projectTitle string, sceneCount int) error {
	if !n.toggles.Scenes {
		return nil
	}
	data := payload{
		title:   "Reelsmith - Scenes Approved",
		message: fmt.Sprintf("All %d scenes of %s approved, generating scene images", sceneCount, strings.TrimSpace(projectTitle)),
		tags:    []string{"reelsmith", "scenes", "approved"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVideoFailed(ctx context.Context, projectTitle, sceneTitle, message string) error {
	if !n.toggles.Video {
		return nil
	}
	scene := strings.TrimSpace(sceneTitle)
	if scene == "" {
		scene = "a scene"
	}
	data := payload{
		title:    "Reelsmith - Video Failed",
		message:  fmt.Sprintf("Video for %s of %s failed: %s", scene, strings.TrimSpace(projectTitle), strings.TrimSpace(message)),
		tags:     []string{"reelsmith", "video", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReelReady(ctx context.Context, projectTitle, videoURL string) error {
	if !n.toggles.Assembly {
		return nil
	}
	message := fmt.Sprintf("Final reel for %s is ready", strings.TrimSpace(projectTitle))
	if videoURL = strings.TrimSpace(videoURL); videoURL != "" {
		message = fmt.Sprintf("%s\n%s", message, videoURL)
	}
	data := payload{
		title:    "Reelsmith - Reel Ready",
		message:  message,
		tags:     []string{"reelsmith", "assembly", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReelFailed(ctx context.Context, projectTitle, message string) error {
	if !n.toggles.Assembly {
		return nil
	}
	data := payload{
		title:    "Reelsmith - Assembly Failed",
		message:  fmt.Sprintf("Assembly for %s failed: %s", strings.TrimSpace(projectTitle), strings.TrimSpace(message)),
		tags:     []string{"reelsmith", "assembly", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.toggles.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Reelsmith - Error",
		message:  builder.String(),
		tags:     []string{"reelsmith", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Reelsmith - Test",
		message:  "Notification system test",
		tags:     []string{"reelsmith", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyParseComplete(context.Context, string, int) error          { return nil }
func (noopService) NotifyParseFailed(context.Context, string, string) error         { return nil }
func (noopService) NotifyBibleReady(context.Context, string) error                  { return nil }
func (noopService) NotifyScenesApproved(context.Context, string, int) error         { return nil }
func (noopService) NotifyVideoFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyReelReady(context.Context, string, string) error           { return nil }
func (noopService) NotifyReelFailed(context.Context, string, string) error          { return nil }
func (noopService) NotifyError(context.Context, error, string) error                { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
