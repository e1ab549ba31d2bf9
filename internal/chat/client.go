package chat

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Request is the normalized turn request sent to the chat backend.
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Response is the assistant reply for a single turn.
type Response struct {
	Text             string  `json:"response"`
	ModelUsed        string  `json:"model_used,omitempty"`
	RouterConfidence float64 `json:"router_confidence,omitempty"`
}

// Client sends one utterance and returns the assistant reply.
type Client interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Config controls client construction.
type Config struct {
	Mode    string
	HTTPURL string
	Timeout time.Duration
}

func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return NewMockClient(), nil
		}
		return NewFallbackClient(NewHTTPClient(cfg.HTTPURL, cfg.Timeout), NewMockClient()), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("chat HTTP URL is required for http mode")
		}
		return NewHTTPClient(cfg.HTTPURL, cfg.Timeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, errors.New("unknown chat mode: " + mode)
	}
}
