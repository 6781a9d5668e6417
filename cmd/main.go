package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solchat/internal/app"
	"solchat/internal/chat"
	"solchat/internal/config"
	"solchat/internal/credits"
	"solchat/internal/llm"
	"solchat/internal/payment"
	"solchat/internal/solana"
	"solchat/internal/store"
)

// loadEnvFile loads environment variables from a .env file if present.
// It attempts to load from the current directory and parent directories
// up to the root directory.
func loadEnvFile() {
	err := godotenv.Load()
	if err == nil {
		log.Println("Loaded environment variables from .env file in current directory")
		return
	}

	workDir, err := os.Getwd()
	if err != nil {
		log.Printf("Warning: Could not determine current directory: %v", err)
		return
	}

	for dir := workDir; dir != "/"; dir = filepath.Dir(dir) {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				log.Printf("Loaded environment variables from %s", envPath)
				return
			}
		}
	}

	log.Println("No .env file found. Using existing environment variables.")
}

func main() {
	loadEnvFile()

	inMemory := flag.Bool("in-memory", false, "Use the in-memory store instead of SQLite (data is lost on exit)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var db store.Store
	if *inMemory {
		log.Println("Using in-memory store")
		db = store.NewMemoryStore()
	} else {
		sqlite, err := store.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer sqlite.Close()
		log.Printf("Using SQLite database at %s", cfg.DatabasePath)
		db = sqlite
	}

	chain := solana.NewClient(cfg.SolanaRPCURL, cfg.TreasuryWallet, cfg.CreditsTokenMint)

	ledger := payment.NewMemoryLedger()
	facilitator := payment.NewFacilitator(ledger, chain, payment.Config{
		Recipient:           cfg.TreasuryWallet,
		Network:             cfg.SolanaNetwork,
		CreditPriceLamports: cfg.CreditPriceLamports,
		TTL:                 cfg.PaymentTTL,
	})

	gate := credits.NewGate(chain, facilitator, db, nil)

	openAI := llm.NewOpenAIBackend(cfg.OpenAIAPIKey)
	backends := llm.NewRegistry()
	backends.Register("gpt", openAI)
	backends.Register("gemini", llm.NewGeminiBackend(cfg.GeminiAPIKey))

	orchestrator := chat.NewOrchestrator(backends, db, cfg.StreamIdleTimeout)

	application := app.NewApp(app.Options{
		Store:         db,
		Gate:          gate,
		Facilitator:   facilitator,
		Orchestrator:  orchestrator,
		Titler:        openAI,
		Network:       cfg.SolanaNetwork,
		SessionSecret: cfg.SessionSecret,
	})

	// Create a context that will be canceled on program termination.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	// Expiry checks and ledger sweeps run for the lifetime of the process.
	go facilitator.Run(ctx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: application.Router,
	}

	go func() {
		log.Printf("Starting server on %s...", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	} else {
		log.Println("Server gracefully stopped")
	}
}
