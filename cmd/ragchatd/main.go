package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ragchat/internal/bootstrap"
	"ragchat/internal/config"
	"ragchat/internal/logger"
	"ragchat/internal/session"
	transport "ragchat/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "", "Path to YAML or TOML config file (optional; uses ~/.config/ragchat/config.yaml if not provided)")
	addr := flag.String("addr", "", "Listen address, overrides server.addr")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if *cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(*cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	lg, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to open log: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, err := bootstrap.New(ctx, cfg, lg)
	if err != nil {
		lg.Error("failed to initialise components", "error", err)
		os.Exit(1)
	}
	defer factory.Close()

	idle := time.Duration(cfg.Server.SessionIdleMin) * time.Minute
	registry := session.NewRegistry(factory.NewKnowledgeBase, idle, lg)
	go registry.Run(ctx, max(idle/4, time.Minute))

	router := transport.NewRouter(registry, transport.Options{
		GinMode:        cfg.Server.GinMode,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		StartedAt:      time.Now(),
		Logger:         lg,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", "error", err)
	}
	registry.CloseAll(shutdownCtx)
	lg.Info("server exited")
}
