package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink describes the minimal interface required to emit StatsD-style metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string
}

// Client emits metrics over UDP using the DogStatsD line protocol.
// It is safe for concurrent use; a nil or disabled Client drops everything.
type Client struct {
	prefix     string
	globalTags map[string]string
	logger     *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured StatsD endpoint unless disabled.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := &Client{
		prefix:     strings.Trim(strings.TrimSpace(cfg.Prefix), "."),
		globalTags: cloneTags(cfg.GlobalTags),
		logger:     logger,
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	client.conn = conn
	return client, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Count increments a counter metric.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.write(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge records the current value for a gauge metric.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.write(name, formatFloat(value), "g", tags)
}

// Timing records a timing metric in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.write(name, formatFloat(float64(value)/float64(time.Millisecond)), "ms", tags)
}

// Close releases the underlying UDP connection if one was established.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) write(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line := formatLine(c.metricName(name), value, kind, c.globalTags, tags)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "error", err)
	}
}

func (c *Client) metricName(name string) string {
	normalized := normalizeMetricName(name)
	switch {
	case normalized == "":
		return ""
	case c.prefix == "":
		return normalized
	default:
		return c.prefix + "." + normalized
	}
}

// formatLine renders one datagram, e.g. "joblink.auth.role_lookup:1|c|#result:success".
func formatLine(metric, value, kind string, global, local map[string]string) string {
	if metric == "" {
		return ""
	}
	return metric + ":" + value + "|" + kind + formatTags(global, local)
}

func normalizeMetricName(name string) string {
	n := strings.NewReplacer(" ", "_", "/", "_").Replace(strings.TrimSpace(name))
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

// formatTags merges global and local tags, local winning, sorted by key.
func formatTags(global, local map[string]string) string {
	merged := cloneTags(global)
	maps.Copy(merged, cloneTags(local))
	if len(merged) == 0 {
		return ""
	}
	keys := slices.Sorted(maps.Keys(merged))
	for i, k := range keys {
		keys[i] = k + ":" + merged[k]
	}
	return "|#" + strings.Join(keys, ",")
}

func cloneTags(tags map[string]string) map[string]string {
	cp := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			cp[key] = strings.TrimSpace(v)
		}
	}
	return cp
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Discard is a Sink that drops every metric.
var Discard Sink = discard{}

type discard struct{}

func (discard) Count(string, int64, map[string]string)          {}
func (discard) Gauge(string, float64, map[string]string)        {}
func (discard) Timing(string, time.Duration, map[string]string) {}

// WithTags returns a Sink that adds tags to every metric sent to next.
// Per-call tags override the fixed ones.
func WithTags(next Sink, tags map[string]string) Sink {
	if next == nil {
		return Discard
	}
	return taggedSink{next: next, tags: cloneTags(tags)}
}

type taggedSink struct {
	next Sink
	tags map[string]string
}

func (s taggedSink) merge(tags map[string]string) map[string]string {
	out := maps.Clone(s.tags)
	maps.Copy(out, tags)
	return out
}

func (s taggedSink) Count(name string, value int64, tags map[string]string) {
	s.next.Count(name, value, s.merge(tags))
}

func (s taggedSink) Gauge(name string, value float64, tags map[string]string) {
	s.next.Gauge(name, value, s.merge(tags))
}

func (s taggedSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.next.Timing(name, value, s.merge(tags))
}
