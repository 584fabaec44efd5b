package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metricCall struct {
	kind string
	name string
	tags map[string]string
}

type fakeSink struct{ calls []metricCall }

func (f *fakeSink) Count(name string, _ int64, tags map[string]string) {
	f.calls = append(f.calls, metricCall{"count", name, tags})
}

func (f *fakeSink) Gauge(name string, _ float64, tags map[string]string) {
	f.calls = append(f.calls, metricCall{"gauge", name, tags})
}

func (f *fakeSink) Timing(name string, _ time.Duration, tags map[string]string) {
	f.calls = append(f.calls, metricCall{"timing", name, tags})
}

type lookupErr struct{}

func (lookupErr) Error() string { return "lookup" }

func TestEmitRoleLookup(t *testing.T) {
	sink := &fakeSink{}
	EmitRoleLookup(sink, RoleLookupMetric{Result: ResultSuccess, Role: "admin", Duration: time.Millisecond})
	require.Len(t, sink.calls, 2)
	assert.Equal(t, metricCall{"count", "auth.role_lookup", map[string]string{"result": "success", "role": "admin"}}, sink.calls[0])
	assert.Equal(t, "auth.role_lookup.duration", sink.calls[1].name)

	sink = &fakeSink{}
	EmitRoleLookup(sink, RoleLookupMetric{Result: ResultError, Err: fmt.Errorf("wrap: %w", lookupErr{})})
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "metrics_lookuperr", sink.calls[0].tags["error_class"])

	EmitRoleLookup(nil, RoleLookupMetric{Result: ResultSuccess})
}

func TestEmitSessionEvent(t *testing.T) {
	sink := &fakeSink{}
	EmitSessionEvent(sink, "SIGNED_IN", true)
	EmitSessionEvent(sink, "SIGNED_OUT", false)
	assert.Equal(t, map[string]string{"event": "SIGNED_IN", "result": "success"}, sink.calls[0].tags)
	assert.Equal(t, map[string]string{"event": "SIGNED_OUT", "result": "stale"}, sink.calls[1].tags)
}

func TestEmitSignOutAndSubscriptionLost(t *testing.T) {
	sink := &fakeSink{}
	EmitSignOut(sink, nil)
	EmitSignOut(sink, errors.New("boom"))
	EmitSubscriptionLost(sink, nil)
	EmitSubscriptionLost(sink, errors.New("gone"))

	require.Len(t, sink.calls, 4)
	assert.Equal(t, "success", sink.calls[0].tags["result"])
	assert.Equal(t, "error", sink.calls[1].tags["result"])
	assert.Equal(t, "errors_errorstring", sink.calls[1].tags["error_class"])
	assert.Nil(t, sink.calls[2].tags)
	assert.Equal(t, "auth.subscription_lost", sink.calls[3].name)
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "1", "": "x"}
	out := CloneTags(src)
	assert.Equal(t, map[string]string{"a": "1"}, out)
	out["a"] = "2"
	assert.Equal(t, "1", src["a"])
}
