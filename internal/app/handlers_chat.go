package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"solchat/internal/chat"
	"solchat/internal/credits"
	"solchat/internal/llm"
	"solchat/internal/payment"
	"solchat/internal/store"
	"solchat/pkg/models"
)

type createSessionRequest struct {
	Title  string   `json:"title"`
	Models []string `json:"models"`
}

func (a *App) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	account, err := a.ensureAccount(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve account")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if len(req.Models) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "At least one model is required")
		return
	}

	title := req.Title
	if title == "" {
		title = llm.DefaultTitle
	}

	session := &models.ChatSession{
		ID:        uuid.New().String(),
		OwnerID:   account.ID,
		OwnerKind: account.Kind,
		Title:     title,
		Models:    req.Models,
		Status:    models.SessionActive,
		CreatedAt: time.Now(),
	}
	if err := a.store.CreateSession(r.Context(), session); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create chat session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"chatSessionId": session.ID})
}

func (a *App) handleListSessions(w http.ResponseWriter, r *http.Request) {
	account, err := a.currentAccount(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Valid session required")
		return
	}

	sessions, err := a.store.ListSessions(r.Context(), account.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list chat sessions")
		return
	}

	type sessionSummary struct {
		ChatSessionID string `json:"chatSessionId"`
		Title         string `json:"title"`
	}
	summaries := make([]sessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, sessionSummary{ChatSessionID: session.ID, Title: session.Title})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chatSessions": summaries})
}

// loadOwnedSession fetches a session and enforces ownership.
func (a *App) loadOwnedSession(r *http.Request, account *models.Account, sessionID string) (*models.ChatSession, int, string) {
	session, err := a.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, http.StatusNotFound, "SESSION_NOT_FOUND"
		}
		return nil, http.StatusInternalServerError, "INTERNAL_ERROR"
	}
	if session.OwnerID != "" && session.OwnerID != account.ID {
		return nil, http.StatusForbidden, "ACCESS_DENIED"
	}
	return session, 0, ""
}

type postQueryRequest struct {
	Query string `json:"query"`
}

// walletRequiredBody is the 402 shape for accounts without a wallet: no
// challenge is minted because there is nowhere to settle from.
type walletRequiredBody struct {
	Error            string `json:"error"`
	Code             string `json:"code"`
	CreditsRequired  int    `json:"creditsRequired"`
	CreditsAvailable int    `json:"creditsAvailable"`
	CreditsMissing   int    `json:"creditsMissing"`
	Message          string `json:"message"`
}

func (a *App) handlePostQuery(w http.ResponseWriter, r *http.Request) {
	account, err := a.ensureAccount(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve account")
		return
	}

	if !a.limiter.Check(queryRateLimit, account.ID) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
		return
	}

	session, status, code := a.loadOwnedSession(r, account, r.PathValue("chatSessionId"))
	if session == nil {
		writeError(w, status, code, "Chat session unavailable")
		return
	}

	var req postQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Query text is required")
		return
	}

	admission, err := a.gate.Admit(r.Context(), account, session.Models)
	if err != nil {
		var walletRequired *credits.WalletRequiredError
		switch {
		case errors.Is(err, credits.ErrNoModels):
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Chat session has no models")
		case errors.As(err, &walletRequired):
			writeJSON(w, http.StatusPaymentRequired, walletRequiredBody{
				Error:            "Payment Required",
				Code:             "WALLET_REQUIRED",
				CreditsRequired:  walletRequired.Required,
				CreditsAvailable: 0,
				CreditsMissing:   walletRequired.Required,
				Message:          "Connect your Solana wallet to purchase credits",
			})
		default:
			log.Printf("Credit check error: %v", err)
			writeError(w, http.StatusInternalServerError, "CREDIT_CHECK_ERROR", "Failed to check credits")
		}
		return
	}

	if !admission.Granted {
		writeJSON(w, http.StatusPaymentRequired, payment.RenderChallenge(admission.Challenge))
		return
	}

	query := &models.ChatMessage{
		ID:            uuid.New().String(),
		ChatSessionID: session.ID,
		Role:          models.RoleUser,
		Content:       req.Query,
		CreatedAt:     time.Now(),
	}
	if err := a.store.CreateMessage(r.Context(), query); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save query")
		return
	}

	if session.Title == llm.DefaultTitle && a.titler != nil {
		go a.generateTitle(session, req.Query)
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queryId":          query.ID,
		"creditsRequired":  admission.Required,
		"creditsAvailable": admission.Balance,
	})
}

// generateTitle replaces the placeholder title with one derived from the
// first query. Best effort, detached from the request.
func (a *App) generateTitle(session *models.ChatSession, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	title := llm.TitleFromQuery(ctx, a.titler, query)
	if title == llm.DefaultTitle {
		return
	}
	session.Title = title
	if err := a.store.UpdateSession(ctx, session); err != nil {
		log.Printf("Failed to update session title: %v", err)
	}
}

func (a *App) handleStream(w http.ResponseWriter, r *http.Request) {
	account, err := a.currentAccount(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Valid session required")
		return
	}

	if !a.limiter.Check(streamRateLimit, account.ID) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
		return
	}

	query, err := a.store.GetMessage(r.Context(), r.PathValue("queryId"))
	if err != nil || query.Role != models.RoleUser {
		writeError(w, http.StatusNotFound, "QUERY_NOT_FOUND", "Query not found")
		return
	}
	if query.Status == models.MessageStreamed {
		writeError(w, http.StatusConflict, "QUERY_ALREADY_STREAMED", "Query has already been streamed")
		return
	}

	session, status, code := a.loadOwnedSession(r, account, query.ChatSessionID)
	if session == nil {
		writeError(w, status, code, "Chat session unavailable")
		return
	}

	required, err := a.gate.RequiredCredits(session.Models)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Chat session has no models")
		return
	}

	history, err := a.historyForQuery(r.Context(), session.ID, query.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load conversation history")
		return
	}

	sink, err := chat.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming not supported")
		return
	}

	// Mark the query consumed before the fan-out starts so a second
	// stream request cannot bill it again.
	query.Status = models.MessageStreamed
	if err := a.store.UpdateMessage(r.Context(), query); err != nil {
		log.Printf("Failed to mark query %s streamed: %v", query.ID, err)
	}

	fanOut := chat.FanOut{
		Session: session,
		Query:   query,
		History: history,
		Credits: required,
	}
	if err := a.orchestrator.Run(r.Context(), fanOut, sink); err != nil {
		// The stream is already committed; nothing more can reach the
		// client beyond what was sent.
		log.Printf("Fan-out for query %s ended with error: %v", query.ID, err)
	}
}

// historyForQuery builds the role-tagged history sent to backends: prior
// user turns, completed assistant turns, and the new query, in order.
func (a *App) historyForQuery(ctx context.Context, sessionID, queryID string) ([]llm.Message, error) {
	messages, err := a.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(messages))
	for _, message := range messages {
		switch message.Role {
		case models.RoleUser:
			history = append(history, llm.Message{Role: models.RoleUser, Content: message.Content})
		case models.RoleAssistant:
			if message.Status == models.MessageCompleted && message.Content != "" {
				history = append(history, llm.Message{Role: models.RoleAssistant, Content: message.Content})
			}
		}
		if message.ID == queryID {
			break
		}
	}
	return history, nil
}
