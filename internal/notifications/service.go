package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
)

const userAgent = "Squeuer-Go/0.1.0"

// Service defines the notification surface exposed to the daemon controller.
type Service interface {
	NotifyTaskCompleted(ctx context.Context, sourcePath string) error
	NotifyTaskFailed(ctx context.Context, sourcePath, reason string) error
	NotifyQueueDrained(ctx context.Context) error
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
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		taskCompleted: cfg.Notifications.TaskCompleted,
		taskFailed:    cfg.Notifications.TaskFailed,
		queueDrained:  cfg.Notifications.QueueDrained,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	taskCompleted bool
	taskFailed    bool
	queueDrained  bool
}

func (n *ntfyService) NotifyTaskCompleted(ctx context.Context, sourcePath string) error {
	if !n.taskCompleted {
		return nil
	}
	data := payload{
		title:   "Squeuer - Render Complete",
		message: fmt.Sprintf("Finished rendering: %s", filepath.Base(sourcePath)),
		tags:    []string{"squeuer", "task", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskFailed(ctx context.Context, sourcePath, reason string) error {
	if !n.taskFailed {
		return nil
	}
	message := fmt.Sprintf("Render failed: %s", filepath.Base(sourcePath))
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\n%s", message, reason)
	}
	data := payload{
		title:    "Squeuer - Render Failed",
		message:  message,
		tags:     []string{"squeuer", "task", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context) error {
	if !n.queueDrained {
		return nil
	}
	data := payload{
		title:   "Squeuer - Queue Drained",
		message: "All queued renders finished",
		tags:    []string{"squeuer", "queue", "drained"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
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
		title:    "Squeuer - Error",
		message:  builder.String(),
		tags:     []string{"squeuer", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Squeuer - Test",
		message:  "Notification system test",
		tags:     []string{"squeuer", "test"},
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

func (noopService) NotifyTaskCompleted(context.Context, string) error      { return nil }
func (noopService) NotifyTaskFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyQueueDrained(context.Context) error               { return nil }
func (noopService) NotifyError(context.Context, error, string) error       { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
