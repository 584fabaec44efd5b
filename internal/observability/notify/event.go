package notify

import (
	"context"
	"errors"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// ConnectivityAlert describes a backend that the auth layer could not reach.
type ConnectivityAlert struct {
	// Component names the failing dependency, e.g. "session_stream".
	Component  string
	Summary    string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming connectivity alerts.
type Sink interface {
	SendConnectivityAlert(ctx context.Context, alert ConnectivityAlert) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, alert ConnectivityAlert) error

// SendConnectivityAlert implements the Sink interface.
func (f SinkFunc) SendConnectivityAlert(ctx context.Context, alert ConnectivityAlert) error {
	if f == nil {
		return nil
	}
	return f(ctx, alert)
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

// SendConnectivityAlert implements the Sink interface.
func (f Fanout) SendConnectivityAlert(ctx context.Context, alert ConnectivityAlert) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.SendConnectivityAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Retry calls fn up to retries+1 times with a linear 200ms backoff between attempts.
func Retry(ctx context.Context, retries int, fn func(context.Context) error) error {
	attempts := max(retries, 0) + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
