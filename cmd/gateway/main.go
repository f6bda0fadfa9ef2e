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

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"chat-gateway/internal/config"
	"chat-gateway/internal/proxy"
	"chat-gateway/internal/ratelimit"
	"chat-gateway/internal/upstream"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		// The proxies answer 500 not-configured per request too, but a
		// missing webhook is worth failing loudly at startup.
		log.Printf("Warning: %v — proxy requests will fail until configured", err)
	}

	chatLimiter := ratelimit.NewWindowLimiter(cfg.ChatRateLimitMax, cfg.ChatRateWindow())
	contactLimiter := ratelimit.NewWindowLimiter(cfg.ContactRateLimitMax, cfg.ContactRateWindow())

	chatForwarder := upstream.New(cfg.ChatWebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout())
	contactForwarder := upstream.New(cfg.ContactWebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout())

	mux := http.NewServeMux()
	mux.Handle("/api/chat", proxy.NewChatHandler(chatLimiter, chatForwarder))
	mux.Handle("/api/contact", proxy.NewContactHandler(contactLimiter, contactForwarder))
	mux.HandleFunc("/healthz", proxy.Health)

	// Stale limiter entries are also swept lazily on lookups; the cron pass
	// bounds table memory during quiet periods.
	sweeper := cron.New(cron.WithLocation(time.UTC))
	if _, err := sweeper.AddFunc("*/10 * * * *", func() {
		n := chatLimiter.Sweep() + contactLimiter.Sweep()
		if n > 0 {
			log.Printf("🧹 swept %d stale rate-limit entries", n)
		}
	}); err != nil {
		log.Fatalf("failed to schedule limiter sweep: %v", err)
	}
	sweeper.Start()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("🚀 gateway listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	cronCtx := sweeper.Stop()
	<-cronCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
