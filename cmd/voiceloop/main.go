package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/novalabs/voiceloop/internal/chat"
	"github.com/novalabs/voiceloop/internal/config"
	"github.com/novalabs/voiceloop/internal/httpapi"
	"github.com/novalabs/voiceloop/internal/observability"
	"github.com/novalabs/voiceloop/internal/session"
	"github.com/novalabs/voiceloop/internal/transcript"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	transcripts, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}
	defer transcripts.Close()
	if cfg.DatabaseURL != "" {
		log.Printf("transcript store: postgres")
	} else {
		log.Printf("transcript store: in-memory")
	}

	chatClient, err := chat.NewClient(chat.Config{
		Mode:    cfg.ChatMode,
		HTTPURL: cfg.ChatHTTPURL,
		Timeout: cfg.ChatTimeout,
	})
	if err != nil {
		log.Fatalf("chat client init failed: %v", err)
	}
	log.Printf("chat mode: %s", cfg.ChatMode)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, chatClient, transcripts, metrics, log.Default())
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
