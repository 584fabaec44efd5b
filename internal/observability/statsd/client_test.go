package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                        "",
		" auth.role_lookup ":      "auth.role_lookup",
		"auth sign out":           "auth_sign_out",
		"http/requests":           "http_requests",
		"..auth...session_event.": "auth.session_event",
	}
	for in, want := range cases {
		if got := normalizeMetricName(in); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	got := formatTags(
		map[string]string{"env": "prod", "service": "joblink", " ": "dropped"},
		map[string]string{"result": "success", "env": " staging "},
	)
	if want := "|#env:staging,result:success,service:joblink"; got != want {
		t.Fatalf("formatTags = %q, want %q", got, want)
	}
	if got := formatTags(nil, map[string]string{"": "x"}); got != "" {
		t.Fatalf("expected empty tags, got %q", got)
	}
}

func TestFormatLine(t *testing.T) {
	t.Parallel()

	if got := formatLine("", "1", "c", nil, nil); got != "" {
		t.Fatalf("expected empty line for empty metric, got %q", got)
	}
	got := formatLine("joblink.auth.sign_out", "1", "c", nil, map[string]string{"result": "error"})
	if want := "joblink.auth.sign_out:1|c|#result:error"; got != want {
		t.Fatalf("formatLine = %q, want %q", got, want)
	}
}

func TestClientWritesDatagrams(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     ".joblink.",
		GlobalTags: map[string]string{"service": "web"},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	client.Count("auth.role_lookup", 1, map[string]string{"result": "success"})
	client.Gauge("auth.observers", 2.5, nil)
	client.Timing("auth.role_lookup.duration", 1500*time.Microsecond, nil)

	want := []string{
		"joblink.auth.role_lookup:1|c|#result:success,service:web",
		"joblink.auth.observers:2.5|g|#service:web",
		"joblink.auth.role_lookup.duration:1.5|ms|#service:web",
	}
	buf := make([]byte, 512)
	for _, w := range want {
		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			t.Fatalf("read datagram: %v", err)
		}
		if got := string(buf[:n]); got != w {
			t.Fatalf("datagram = %q, want %q", got, w)
		}
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{conn: clientConn}
	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	nilClient.Count("x", 1, nil)
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	if err == nil || !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("expected statsd dial error, got %v", err)
	}
}

type captureSink struct {
	Sink
	tags []map[string]string
}

func (c *captureSink) Count(_ string, _ int64, tags map[string]string) { c.tags = append(c.tags, tags) }

func TestWithTags(t *testing.T) {
	t.Parallel()

	inner := &captureSink{Sink: Discard}
	s := WithTags(inner, map[string]string{"component": "auth", "mode": "dev"})
	s.Count("auth.sign_out", 1, map[string]string{"mode": "redis"})
	s.Count("auth.sign_out", 1, nil)

	if len(inner.tags) != 2 {
		t.Fatalf("expected 2 counts, got %d", len(inner.tags))
	}
	if inner.tags[0]["mode"] != "redis" || inner.tags[0]["component"] != "auth" {
		t.Fatalf("unexpected merged tags %v", inner.tags[0])
	}
	if inner.tags[1]["mode"] != "dev" {
		t.Fatalf("unexpected fixed tags %v", inner.tags[1])
	}

	if WithTags(nil, nil) != Discard {
		t.Fatal("expected Discard for nil sink")
	}
}
