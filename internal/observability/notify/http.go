package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PostJSON sends body to url and treats any non-2xx status as an error carrying the response text.
// name prefixes error messages, e.g. "slack webhook".
func PostJSON(ctx context.Context, client *http.Client, name, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", name, err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil {
		readErr = errors.Join(readErr, fmt.Errorf("close response body: %w", closeErr))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", name, resp.Status, strings.TrimSpace(string(respBody)))
	}
	if readErr != nil {
		return fmt.Errorf("read %s response: %w", name, readErr)
	}
	return nil
}
