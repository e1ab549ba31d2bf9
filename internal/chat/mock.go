package chat

import (
	"context"
	"fmt"
	"strings"
)

// MockClient provides deterministic local replies when no backend is available.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Send(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	base := strings.TrimSpace(req.Message)
	if base == "" {
		base = "I am listening."
	}
	return Response{
		Text:             fmt.Sprintf("I heard you: %s", base),
		ModelUsed:        "mock",
		RouterConfidence: 1,
	}, nil
}
