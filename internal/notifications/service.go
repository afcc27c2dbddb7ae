package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/config"
)

const userAgent = "Clipforge/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyJobStarted(ctx context.Context, title string, sceneCount int) error
	NotifyJobCompleted(ctx context.Context, title, finalFile string, duration time.Duration) error
	NotifyJobFailed(ctx context.Context, title, reason string, retryable bool) error
	NotifyCacheSwept(ctx context.Context, evicted int) error
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
	client   *http.Client
}

func (n *ntfyService) NotifyJobStarted(ctx context.Context, title string, sceneCount int) error {
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Clipforge - Job Started",
		message: fmt.Sprintf("Producing: %s (%d scenes)", title, sceneCount),
		tags:    []string{"clipforge", "job", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, title, finalFile string, duration time.Duration) error {
	title = strings.TrimSpace(title)
	finalFile = strings.TrimSpace(finalFile)
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	message := fmt.Sprintf("Video ready: %s (%s)", title, duration)
	if finalFile != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, finalFile)
	}
	data := payload{
		title:    "Clipforge - Complete",
		message:  message,
		tags:     []string{"clipforge", "job", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, title, reason string, retryable bool) error {
	title = strings.TrimSpace(title)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}

	heading := "Clipforge - Job Failed"
	if retryable {
		heading = "Clipforge - Job Failed (will retry)"
	}
	data := payload{
		title:    heading,
		message:  fmt.Sprintf("Failed: %s\n%s", title, reason),
		tags:     []string{"clipforge", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCacheSwept(ctx context.Context, evicted int) error {
	data := payload{
		title:   "Clipforge - Cache Sweep",
		message: fmt.Sprintf("Evicted %d stale footage files", evicted),
		tags:    []string{"clipforge", "cache", "sweep"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Clipforge - Test",
		message:  "Notification system test",
		tags:     []string{"clipforge", "test"},
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

func (noopService) NotifyJobStarted(context.Context, string, int) error { return nil }
func (noopService) NotifyJobCompleted(context.Context, string, string, time.Duration) error {
	return nil
}
func (noopService) NotifyJobFailed(context.Context, string, string, bool) error { return nil }
func (noopService) NotifyCacheSwept(context.Context, int) error                 { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
