package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/joblink/joblink-web/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// StatusURL, when set, is linked from the message header (e.g. the /readyz page).
	StatusURL string
}

// Client delivers connectivity alerts to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	statusURL  string
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   fallbackString(strings.TrimSpace(cfg.Username), "joblink"),
		retryLimit: max(cfg.RetryLimit, 0),
		statusURL:  validLink(cfg.StatusURL),
		client:     hc,
	}, nil
}

// SendConnectivityAlert posts a formatted message to Slack.
func (c *Client) SendConnectivityAlert(ctx context.Context, alert notify.ConnectivityAlert) error {
	body, err := json.Marshal(c.formatMessage(alert))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return notify.Retry(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, "slack webhook", c.webhookURL, body)
	})
}

func (c *Client) formatMessage(alert notify.ConnectivityAlert) map[string]any {
	timestamp := alert.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var text strings.Builder
	text.WriteString("*Auth connectivity alert*")
	if alert.Component != "" {
		text.WriteString(" `")
		text.WriteString(escapeSlackText(alert.Component))
		text.WriteByte('`')
	}
	if c.statusURL != "" {
		fmt.Fprintf(&text, " <%s|status>", c.statusURL)
	}
	text.WriteByte('\n')

	appendSlackField(&text, "Severity", fallbackString(alert.Severity, notify.SeverityCritical))
	appendSlackField(&text, "Summary", escapeSlackText(alert.Summary))
	appendSlackField(&text, "Error class", alert.ErrorClass)
	appendSlackField(&text, "Error", escapeSlackText(alert.Error))
	appendSlackMetadata(&text, alert.Metadata)
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func escapeSlackText(value string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(value)
}

// validLink returns raw when it is an absolute URL, otherwise "".
func validLink(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.String()
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendSlackMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(metadata[k])
		text.WriteByte('\n')
	}
}
