package chat

import (
	"context"
	"errors"
	"fmt"
)

// FallbackClient attempts a primary client first and falls back on error.
type FallbackClient struct {
	primary  Client
	fallback Client
}

func NewFallbackClient(primary Client, fallback Client) *FallbackClient {
	return &FallbackClient{
		primary:  primary,
		fallback: fallback,
	}
}

func (c *FallbackClient) Send(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.primary == nil {
		if c != nil && c.fallback != nil {
			return c.fallback.Send(ctx, req)
		}
		return Response{}, fmt.Errorf("fallback client misconfigured")
	}

	resp, err := c.primary.Send(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Response{}, err
	}
	if c.fallback == nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Send(ctx, req)
	if fallbackErr != nil {
		return Response{}, fmt.Errorf("primary client error: %w; fallback client error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}
