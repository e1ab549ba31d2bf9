package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.SilenceWindow != 1800*time.Millisecond {
		t.Fatalf("SilenceWindow = %v, want %v", cfg.SilenceWindow, 1800*time.Millisecond)
	}
	if cfg.FinalSilenceWindow != 700*time.Millisecond {
		t.Fatalf("FinalSilenceWindow = %v, want %v", cfg.FinalSilenceWindow, 700*time.Millisecond)
	}
	if cfg.RestartCooldown != 1200*time.Millisecond {
		t.Fatalf("RestartCooldown = %v, want %v", cfg.RestartCooldown, 1200*time.Millisecond)
	}
	if cfg.SpeechMaxChars != 2800 {
		t.Fatalf("SpeechMaxChars = %d, want 2800", cfg.SpeechMaxChars)
	}
	if cfg.EngineProvider != "remote" {
		t.Fatalf("EngineProvider = %q, want %q", cfg.EngineProvider, "remote")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VOICE_SILENCE_WINDOW", "2500ms")
	t.Setenv("VOICE_SPEECH_MAX_CHARS", "1000")
	t.Setenv("VOICE_ENGINE_PROVIDER", "mock")
	t.Setenv("CHAT_ADAPTER_MODE", "http")
	t.Setenv("CHAT_HTTP_URL", "http://localhost:8010/chat")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SilenceWindow != 2500*time.Millisecond {
		t.Fatalf("SilenceWindow = %v, want %v", cfg.SilenceWindow, 2500*time.Millisecond)
	}
	if cfg.SpeechMaxChars != 1000 {
		t.Fatalf("SpeechMaxChars = %d, want 1000", cfg.SpeechMaxChars)
	}
	if cfg.ChatHTTPURL != "http://localhost:8010/chat" {
		t.Fatalf("ChatHTTPURL = %q", cfg.ChatHTTPURL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("VOICE_FINAL_SILENCE_WINDOW", "5s")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want final window longer than silence window rejected")
	}
}

func TestLoadRejectsBadProvider(t *testing.T) {
	t.Setenv("VOICE_ENGINE_PROVIDER", "browser")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want invalid provider rejected")
	}
}
