package metrics

import (
	"time"

	obserrors "github.com/joblink/joblink-web/internal/observability/errors"
	"github.com/joblink/joblink-web/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultStale   = "stale"
	ResultDefault = "default"
)

// RoleLookupMetric captures the outcome of a role resolution.
type RoleLookupMetric struct {
	Result   string
	Role     string
	Duration time.Duration
	Err      error
}

// EmitRoleLookup emits role lookup counters and timings.
func EmitRoleLookup(sink statsd.Sink, in RoleLookupMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Role != "" {
		tags["role"] = in.Role
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.role_lookup", 1, tags)

	if in.Duration > 0 {
		sink.Timing("auth.role_lookup.duration", in.Duration, CloneTags(tags))
	}
}

// EmitSessionEvent counts a session-change event delivered by the identity provider.
func EmitSessionEvent(sink statsd.Sink, event string, applied bool) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if !applied {
		result = ResultStale
	}
	sink.Count("auth.session_event", 1, map[string]string{"event": event, "result": result})
}

// EmitSignOut counts sign-out attempts tagged by provider outcome.
func EmitSignOut(sink statsd.Sink, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count("auth.sign_out", 1, tags)
}

// EmitSubscriptionLost counts session stream losses and failed subscribe attempts.
func EmitSubscriptionLost(sink statsd.Sink, err error) {
	if sink == nil {
		return
	}
	var tags map[string]string
	if err != nil {
		tags = map[string]string{"error_class": obserrors.Classify(err)}
	}
	sink.Count("auth.subscription_lost", 1, tags)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
