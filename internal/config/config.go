package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice session controller.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	// Utterance segmentation.
	SilenceWindow      time.Duration
	FinalSilenceWindow time.Duration

	// Playback and capture restart.
	RestartCooldown   time.Duration
	RestartRetryDelay time.Duration
	SpeechMaxChars    int

	EngineProvider string

	ChatMode    string
	ChatHTTPURL string
	ChatTimeout time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "voiceloop"),
		AllowAnyOrigin:           false,
		EngineProvider:           envOrDefault("VOICE_ENGINE_PROVIDER", "remote"),
		ChatMode:                 envOrDefault("CHAT_ADAPTER_MODE", "auto"),
		ChatHTTPURL:              envTrimSpace("CHAT_HTTP_URL"),
		DatabaseURL:              envTrimSpace("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		SilenceWindow:            1800 * time.Millisecond,
		FinalSilenceWindow:       700 * time.Millisecond,
		RestartCooldown:          1200 * time.Millisecond,
		RestartRetryDelay:        1000 * time.Millisecond,
		SpeechMaxChars:           2800,
		ChatTimeout:              60 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceWindow, err = durationFromEnv("VOICE_SILENCE_WINDOW", cfg.SilenceWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.FinalSilenceWindow, err = durationFromEnv("VOICE_FINAL_SILENCE_WINDOW", cfg.FinalSilenceWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RestartCooldown, err = durationFromEnv("VOICE_RESTART_COOLDOWN", cfg.RestartCooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.RestartRetryDelay, err = durationFromEnv("VOICE_RESTART_RETRY_DELAY", cfg.RestartRetryDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatTimeout, err = durationFromEnv("CHAT_TIMEOUT", cfg.ChatTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechMaxChars, err = intFromEnv("VOICE_SPEECH_MAX_CHARS", cfg.SpeechMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SilenceWindow < 100*time.Millisecond {
		return Config{}, fmt.Errorf("VOICE_SILENCE_WINDOW must be at least 100ms")
	}
	if cfg.FinalSilenceWindow <= 0 || cfg.FinalSilenceWindow > cfg.SilenceWindow {
		return Config{}, fmt.Errorf("VOICE_FINAL_SILENCE_WINDOW must be positive and no longer than VOICE_SILENCE_WINDOW")
	}
	if cfg.RestartCooldown < 0 {
		return Config{}, fmt.Errorf("VOICE_RESTART_COOLDOWN must not be negative")
	}
	if cfg.SpeechMaxChars <= 0 {
		return Config{}, fmt.Errorf("VOICE_SPEECH_MAX_CHARS must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.EngineProvider)) {
	case "remote", "mock":
	default:
		return Config{}, fmt.Errorf("invalid VOICE_ENGINE_PROVIDER: %q (expected remote|mock)", cfg.EngineProvider)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.ChatMode)) {
	case "auto", "http", "mock":
	default:
		return Config{}, fmt.Errorf("invalid CHAT_ADAPTER_MODE: %q (expected auto|http|mock)", cfg.ChatMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
