// Package config loads the service configuration from environment
// variables. Required keys fail startup rather than surfacing later as
// runtime errors.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration.
type Config struct {
	Port         int    `env:"PORT" envDefault:"3000"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"solchat.db"`

	// SessionSecret signs user and guest session tokens.
	SessionSecret string `env:"SESSION_SECRET,required"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY,required"`
	GeminiAPIKey string `env:"GEMINI_API_KEY,required"`

	SolanaRPCURL  string `env:"SOLANA_RPC_URL" envDefault:"https://api.devnet.solana.com"`
	SolanaNetwork string `env:"SOLANA_NETWORK" envDefault:"devnet"`
	// CreditsTokenMint is the token mint credit balances are derived from.
	CreditsTokenMint string `env:"CREDITS_TOKEN_MINT,required"`
	// TreasuryWallet receives challenge settlements.
	TreasuryWallet string `env:"TREASURY_WALLET,required"`

	// CreditPriceLamports is the fixed per-credit price.
	CreditPriceLamports int64 `env:"CREDIT_PRICE_LAMPORTS" envDefault:"1000000"`
	// PaymentTTL is how long a payment challenge stays payable.
	PaymentTTL time.Duration `env:"PAYMENT_TTL" envDefault:"10m"`
	// StreamIdleTimeout bounds the wait for the next fragment from one
	// model backend.
	StreamIdleTimeout time.Duration `env:"STREAM_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
