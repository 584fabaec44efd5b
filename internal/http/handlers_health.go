package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	healthResponse      = `{"status":"ok"}`
	defaultReadyTimeout = 2 * time.Second
)

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, healthResponse)
}

// ReadinessCheck probes one backing service.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadyHandler reports 200 when every check passes and 503 otherwise.
type ReadyHandler struct {
	Checks  []ReadinessCheck
	Timeout time.Duration
	Logger  *slog.Logger
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	results := make([]error, len(h.Checks))
	var g errgroup.Group
	for i, c := range h.Checks {
		g.Go(func() error {
			results[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Status: "ok", Checks: make(map[string]string, len(h.Checks))}
	code := http.StatusOK
	for i, c := range h.Checks {
		if err := results[i]; err != nil {
			resp.Checks[c.Name] = "unavailable"
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			if h.Logger != nil {
				h.Logger.WarnContext(r.Context(), "readiness check failed",
					slog.String("check", c.Name),
					slog.Any("error", err))
			}
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	WriteJSON(w, code, resp)
}
