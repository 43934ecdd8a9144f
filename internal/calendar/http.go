package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
)

// getJSON issues a GET and decodes a 200 response into out, retrying
// transient failures.
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, retry service.RetryOptions, out any) error {
	return common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return common.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		for k, values := range header {
			for _, v := range values {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if err := statusError(resp, body); err != nil {
			return err
		}

		if err := json.Unmarshal(body, out); err != nil {
			return common.Permanent(fmt.Errorf("failed to parse response: %w", err))
		}
		return nil
	}, retry)
}

func statusError(resp *http.Response, body []byte) error {
	status := resp.StatusCode
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return common.Permanent(fmt.Errorf("graph API error (status %d): %w", status, common.ErrNotFound))
	case status == http.StatusTooManyRequests:
		return common.RetryAfter(
			fmt.Errorf("graph API error (status %d): %w", status, common.ErrRateLimit),
			common.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case status >= 500:
		return fmt.Errorf("graph API error (status %d): %s", status, string(body))
	default:
		return common.Permanent(fmt.Errorf("graph API error (status %d): %s", status, string(body)))
	}
}
