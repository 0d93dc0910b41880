package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// DefaultTimeout bounds every outbound transport call.
const DefaultTimeout = 30 * time.Second

const maxResponseBody = 1024

// NewHTTPClient returns the client shared by the HTTP-based adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

type httpResponse struct {
	status int
	body   string
	header http.Header
}

// post sends body to target and reads at most 1 KB of the response.
func post(ctx context.Context, client *http.Client, target string, body []byte, headers map[string]string) (httpResponse, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return httpResponse{}, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return httpResponse{}, time.Since(start), err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	latency := time.Since(start)
	return httpResponse{status: resp.StatusCode, body: string(respBody), header: resp.Header}, latency, nil
}

// gone reports the status codes that mean the endpoint no longer exists.
func gone(status int) bool {
	return status == http.StatusNotFound || status == http.StatusGone
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func statusError(resp httpResponse) error {
	if resp.body == "" {
		return fmt.Errorf("HTTP %d", resp.status)
	}
	return fmt.Errorf("HTTP %d: %s", resp.status, strings.TrimSpace(resp.body))
}

// parseURL requires an absolute URL, and https when secure is set.
func parseURL(raw string, secure bool) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", domain.ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", domain.ErrValidation, raw)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if secure {
			return nil, fmt.Errorf("%w: url must use https", domain.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported url scheme %q", domain.ErrValidation, u.Scheme)
	}
	return u, nil
}
