// Package app wires the HTTP surface: session routes, the payment
// challenge endpoints, the SSE streaming endpoint and transaction
// history. All externally visible errors leave as structured JSON
// bodies; no raw transport errors cross the boundary.
package app

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"solchat/internal/chat"
	"solchat/internal/credits"
	"solchat/internal/llm"
	"solchat/internal/payment"
	"solchat/internal/store"
	"solchat/pkg/utils"
)

// Per-account limits on the endpoints that reach the LLM backends.
var (
	queryRateLimit  = utils.NewBasicRateLimit(30, time.Minute, "chat-queries")
	streamRateLimit = utils.NewBasicRateLimit(10, time.Minute, "stream-requests")
)

// App represents the application with its router and dependencies.
type App struct {
	Router *http.ServeMux

	store        store.Store
	gate         *credits.Gate
	facilitator  *payment.Facilitator
	orchestrator *chat.Orchestrator
	titler       llm.Completer
	limiter      *utils.RateLimiter
	network      string
	secret       string
}

// Options carries the collaborators the app serves.
type Options struct {
	Store        store.Store
	Gate         *credits.Gate
	Facilitator  *payment.Facilitator
	Orchestrator *chat.Orchestrator
	// Titler generates session titles from the first query; optional.
	Titler llm.Completer
	// Network is the Solana cluster name used for explorer links.
	Network string
	// SessionSecret signs session JWTs.
	SessionSecret string
}

// NewApp creates and initializes the application with its routes.
func NewApp(opts Options) *App {
	a := &App{
		Router:       http.NewServeMux(),
		store:        opts.Store,
		gate:         opts.Gate,
		facilitator:  opts.Facilitator,
		orchestrator: opts.Orchestrator,
		titler:       opts.Titler,
		limiter:      utils.NewRateLimiter(),
		network:      opts.Network,
		secret:       opts.SessionSecret,
	}

	a.initializeRoutes()
	return a
}

func (a *App) initializeRoutes() {
	a.Router.HandleFunc("GET /status", a.handleStatus)

	a.Router.HandleFunc("POST /api/chat/sessions", a.handleCreateSession)
	a.Router.HandleFunc("GET /api/chat/sessions", a.handleListSessions)
	a.Router.HandleFunc("POST /api/chat/session/{chatSessionId}", a.handlePostQuery)
	a.Router.HandleFunc("GET /api/chat/sse/{queryId}", a.handleStream)

	a.Router.HandleFunc("POST /api/pay/verify/{reference}", a.handleVerifyPayment)
	a.Router.HandleFunc("GET /api/pay/status/{reference}", a.handlePaymentStatus)

	a.Router.HandleFunc("POST /api/wallet/connect", a.handleConnectWallet)

	a.Router.HandleFunc("GET /api/transactions", a.handleListTransactions)
	a.Router.HandleFunc("GET /api/transactions/summary", a.handleTransactionSummary)
	a.Router.HandleFunc("GET /api/transactions/{transactionId}", a.handleGetTransaction)
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes a response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// errorBody is the structured error response shape.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError sends a structured error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}
