package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"chat-gateway/internal/chat"
	"chat-gateway/internal/config"
	"chat-gateway/internal/history"
	"chat-gateway/internal/i18n"
	"chat-gateway/internal/ratelimit"
	"chat-gateway/internal/session"
	"chat-gateway/internal/storage"
)

// chatcli is a terminal chat client against a running gateway. It keeps the
// same session state a browser session would: a persisted session id,
// conversation history with a seeded greeting, and the multi-tier send
// limiter.
func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	lang := i18n.Language(cfg.ChatLanguage)
	if !lang.Valid() {
		lang = i18n.LangJA
	}

	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to open data dir: %v", err)
	}

	id, err := session.ID(store)
	if err != nil {
		log.Fatalf("failed to resolve session id: %v", err)
	}

	hist := history.NewStore(store, "conversation")
	limiter := ratelimit.NewSlidingLimiter(store, "rate_limit_history", nil)
	client := chat.NewClient(cfg.ChatEndpoint, lang, id, hist, limiter)

	log.Printf("💬 session %s → %s", id, cfg.ChatEndpoint)
	for _, turn := range hist.Restore(lang) {
		printTurn(turn)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/clear":
			hist.Clear()
			for _, turn := range hist.Restore(lang) {
				printTurn(turn)
			}
			continue
		}

		before := len(hist.All())
		if err := client.Send(context.Background(), line); err != nil {
			switch {
			case errors.Is(err, chat.ErrEmptyMessage):
				fmt.Println("⚠️  message is empty")
			case errors.Is(err, chat.ErrTooLong):
				fmt.Println("⚠️  message is too long")
			default:
				fmt.Printf("⚠️  %v\n", err)
			}
			continue
		}
		for _, turn := range hist.All()[before:] {
			printTurn(turn)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}
}

func printTurn(turn history.Turn) {
	if turn.IsUser {
		return
	}
	fmt.Printf("🤖 %s\n", turn.Text)
}
