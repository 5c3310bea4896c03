package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartcall/gateway/internal/ai"
	"github.com/smartcall/gateway/internal/kb"
	"github.com/smartcall/gateway/internal/realtime"
	"github.com/smartcall/gateway/internal/relay"
	"github.com/smartcall/gateway/internal/session"
	"github.com/smartcall/gateway/internal/store"
	"github.com/smartcall/gateway/internal/suggest"
	"github.com/smartcall/gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	st, err := store.Open(cfg.databaseURL)
	if err != nil {
		slog.Error("store open failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	hub := realtime.NewHub()
	sessions := session.NewService(st, hub)
	transcripts := relay.New(st, hub)

	gemini := ai.NewGeminiClient(cfg.geminiAPIKey, "", cfg.geminiModel, cfg.embeddingModel, cfg.aiPoolSize)
	speech := ai.NewSpeechClient(cfg.speechAPIKey, "", cfg.aiPoolSize)

	backends := map[string]ai.CompletionClient{"gemini": gemini}
	if cfg.openaiAPIKey != "" {
		backends["openai"] = ai.NewOpenAIClient(cfg.openaiAPIKey, cfg.openaiModel)
	}
	completions := ai.NewRouter(backends, cfg.suggestionEngine)

	suggestions := suggest.NewService(completions, st, hub)
	knowledge := kb.NewService(st, gemini)
	wsHandler := ws.NewHandler(sessions, hub, transcripts, cfg.maxWSClients)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if cfg.ringTimeoutSeconds > 0 {
		timeout := time.Duration(cfg.ringTimeoutSeconds) * time.Second
		go sessions.RunRingTimeout(rootCtx, timeout)
		slog.Info("ring timeout enabled", "timeout", timeout)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cfg:       cfg,
		store:     st,
		sessions:  sessions,
		suggest:   suggestions,
		kb:        knowledge,
		speech:    speech,
		gemini:    gemini,
		wsHandler: wsHandler,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		rootCancel()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "env", cfg.appEnv,
		"gemini_configured", gemini.Configured(), "speech_configured", speech.Configured())

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}
