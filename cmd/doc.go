// Package main runs the solchat backend, a payment-gated chat API that
// streams multiple model responses over a single SSE connection.
//
// # Query Lifecycle
//
// A chat session is created with a set of model names. Posting a query to
// the session checks the caller's credit balance against the combined cost
// of those models:
//
//  1. Enough credits: the query is accepted with 202 and a queryId.
//  2. No wallet connected: 402 with code WALLET_REQUIRED.
//  3. Insufficient credits: 402 with a payment challenge (see below).
//
// An accepted query is consumed by opening the SSE endpoint for its
// queryId. Each model attached to the session streams independently; the
// connection carries three event types:
//
//   - init: {"ok": true}, sent once before any model output
//   - chunk: {"chatSessionId", "queryId", "model", "chunk"}
//   - done: per-model outcomes plus the credits charged
//
// Chunks from one model arrive in order; chunks from different models
// interleave arbitrarily. One model failing does not stop the others.
//
// # Payment Challenges
//
// A 402 challenge names a reference, the treasury wallet, an amount in
// lamports and a memo. The client settles it with an on-chain transfer
// carrying that memo, then posts the transaction signature to the verify
// endpoint. Verification fetches the transaction over Solana JSON-RPC,
// checks recipient and amount, and credits the account exactly once.
// Challenges expire after a configurable TTL and are swept an hour after
// reaching a terminal state.
//
// # API Endpoints
//
//   - GET  /status
//   - POST /api/chat/sessions
//   - GET  /api/chat/sessions
//   - POST /api/chat/session/{chatSessionId}
//   - GET  /api/chat/sse/{queryId}
//   - POST /api/pay/verify/{reference}
//   - GET  /api/pay/status/{reference}
//   - POST /api/wallet/connect
//   - GET  /api/transactions
//   - GET  /api/transactions/summary
//   - GET  /api/transactions/{transactionId}
//
// Requests authenticate with a bearer token or the solchat_session cookie.
// Callers without either are issued a guest account automatically.
//
// # Environment Variables
//
//   - SESSION_SECRET: Secret key signing user/guest session tokens
//   - OPENAI_API_KEY: OpenAI API key for gpt-* models and title generation
//   - GEMINI_API_KEY: Gemini API key for gemini-* models
//   - SOLANA_RPC_URL: Solana RPC endpoint (defaults to devnet)
//   - SOLANA_NETWORK: Cluster name for explorer links
//   - CREDITS_TOKEN_MINT: Token mint credit balances are derived from
//   - TREASURY_WALLET: Wallet that receives challenge settlements
//   - CREDIT_PRICE_LAMPORTS: Fixed per-credit price
//   - PAYMENT_TTL: How long a challenge stays payable
//   - STREAM_IDLE_TIMEOUT: Per-model cutoff when a backend stops emitting
//   - DATABASE_PATH: SQLite database location
package main
