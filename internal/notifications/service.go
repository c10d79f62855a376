package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"modvault/internal/config"
)

const userAgent = "modvault/0.1.0"

// Event identifies a notification-worthy milestone.
type Event string

const (
	EventDownloadCompleted Event = "download_completed"
	EventDownloadFailed    Event = "download_failed"
	EventTest              Event = "test"
)

// Payload carries event-specific fields used to format the message.
type Payload map[string]string

// Service publishes notification events. Implementations must tolerate
// arbitrary payload contents.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

// Publish formats and sends the event. Unknown events are dropped silently so
// callers can emit new milestones before every transport learns about them.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	name := strings.TrimSpace(payload["name"])
	if name == "" {
		name = "unknown mod"
	}
	switch event {
	case EventDownloadCompleted:
		return message{
			title: "Modvault - Download Complete",
			body:  fmt.Sprintf("Downloaded: %s", name),
			tags:  []string{"modvault", "download", "completed"},
		}, true
	case EventDownloadFailed:
		body := fmt.Sprintf("Download failed: %s", name)
		if cause := strings.TrimSpace(payload["error"]); cause != "" {
			body = fmt.Sprintf("%s\n%s", body, cause)
		}
		return message{
			title:    "Modvault - Download Failed",
			body:     body,
			tags:     []string{"modvault", "download", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Modvault - Test",
			body:     "Notification system test",
			tags:     []string{"modvault", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
