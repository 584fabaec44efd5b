package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joblink/joblink-web/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	retryLimit int
	endpoint   string
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
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
		routingKey: key,
		source:     fallbackString(cfg.Source, "joblink"),
		component:  fallbackString(cfg.Component, "joblink-auth"),
		retryLimit: max(cfg.RetryLimit, 0),
		endpoint:   fallbackString(cfg.Endpoint, APIEndpoint),
		client:     hc,
	}, nil
}

// SendConnectivityAlert submits a trigger event to PagerDuty.
func (c *Client) SendConnectivityAlert(ctx context.Context, alert notify.ConnectivityAlert) error {
	body, err := json.Marshal(c.buildEvent(alert))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return notify.Retry(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, "pagerduty api", c.endpoint, body)
	})
}

func (c *Client) buildEvent(alert notify.ConnectivityAlert) map[string]any {
	severity := fallbackString(strings.ToLower(alert.Severity), notify.SeverityCritical)

	occurredAt := alert.OccurredAt.UTC()
	if alert.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"component":   alert.Component,
		"error":       alert.Error,
		"error_class": alert.ErrorClass,
	}
	for k, v := range alert.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	component := fallbackString(alert.Component, "unknown")
	summary := fallbackString(alert.Summary, component+" unreachable")

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		// One open incident per failing dependency.
		"dedup_key": c.source + ":" + component,
		"payload": map[string]any{
			"summary":        summary,
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
