package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/novalabs/voiceloop/internal/reliability"
)

const (
	sendMaxAttempts = 3
	sendBackoffBase = 150 * time.Millisecond
	sendBackoffCap  = 2 * time.Second
)

// HTTPError carries the upstream status so callers can decide on retries.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("chat http status %d: %s", e.Status, e.Body)
}

// HTTPClient forwards turn requests to a chat HTTP endpoint.
type HTTPClient struct {
	url    string
	client *http.Client
}

func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the request, retrying transient upstream statuses with a
// capped backoff before giving up.
func (c *HTTPClient) Send(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	var resp Response
	for attempt := 0; ; attempt++ {
		resp, err = c.sendOnce(ctx, payload)
		if err == nil {
			return resp, nil
		}
		httpErr, ok := err.(*HTTPError)
		if !ok || !reliability.IsRetryableHTTPStatus(httpErr.Status) || attempt >= sendMaxAttempts-1 {
			return Response{}, err
		}
		select {
		case <-time.After(reliability.ExponentialBackoff(attempt, sendBackoffBase, sendBackoffCap)):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
}

func (c *HTTPClient) sendOnce(ctx context.Context, payload []byte) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, &HTTPError{Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return Response{}, fmt.Errorf("empty response text")
	}
	return out, nil
}
