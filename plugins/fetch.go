package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/llm/retry"
)

// maxBodyBytes bounds upstream API responses and downloaded images.
const maxBodyBytes = 32 << 20

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// fetcher performs plugin HTTP calls with bounded retries on 429/5xx.
type fetcher struct {
	client  *http.Client
	retryer *retry.Retryer
}

// DefaultRetryPolicy is used for plugin HTTP calls when Options.Retry is nil.
func DefaultRetryPolicy() *retry.RetryPolicy {
	return &retry.RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

func newFetcher(client *http.Client, policy *retry.RetryPolicy, logger *zap.Logger) *fetcher {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &fetcher{
		client:  client,
		retryer: retry.NewBackoffRetryer(policy, logger.With(zap.String("component", "plugin_http"))),
	}
}

// do sends the request and returns the body; body is re-sent on retries.
func (f *fetcher) do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	return retry.Do(ctx, f.retryer, func(ctx context.Context) ([]byte, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, retry.WrapRetryable(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, retry.WrapRetryable(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, retry.WrapRetryable(serr)
			}
			return nil, serr
		}
		return data, nil
	})
}

func (f *fetcher) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	data, err := f.do(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (f *fetcher) postJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	data, err := f.do(ctx, http.MethodPost, url, headers, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
