package app

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"solchat/internal/solana"
	"solchat/internal/store"
	"solchat/pkg/models"
)

const lamportsPerSOL = 1e9

type transactionSolanaView struct {
	Signature      string  `json:"signature"`
	AmountLamports int64   `json:"amountLamports"`
	AmountSOL      float64 `json:"amountSOL"`
	Network        string  `json:"network,omitempty"`
	ExplorerURL    string  `json:"explorerUrl"`
}

type transactionUsageView struct {
	ChatSessionID    string   `json:"chatSessionId"`
	ChatSessionTitle string   `json:"chatSessionTitle"`
	Models           []string `json:"models"`
}

type transactionView struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	CreditsAmount int                    `json:"creditsAmount"`
	Status        string                 `json:"status"`
	CreatedAt     string                 `json:"createdAt"`
	Solana        *transactionSolanaView `json:"solana,omitempty"`
	Usage         *transactionUsageView  `json:"usage,omitempty"`
}

// renderTransaction enriches a transaction with explorer links and the
// originating session's title.
func (a *App) renderTransaction(r *http.Request, tx *models.Transaction) transactionView {
	view := transactionView{
		ID:            tx.ID,
		Type:          tx.Type,
		CreditsAmount: tx.CreditsAmount,
		Status:        tx.Status,
		CreatedAt:     tx.CreatedAt.UTC().Format(time.RFC3339),
	}

	if tx.Solana != nil && tx.Solana.Signature != "" {
		network := tx.Solana.Network
		if network == "" {
			network = a.network
		}
		view.Solana = &transactionSolanaView{
			Signature:      tx.Solana.Signature,
			AmountLamports: tx.Solana.AmountLamports,
			AmountSOL:      float64(tx.Solana.AmountLamports) / lamportsPerSOL,
			Network:        network,
			ExplorerURL:    solana.ExplorerURL(tx.Solana.Signature, network),
		}
	}

	if tx.Usage != nil && tx.Usage.ChatSessionID != "" {
		title := "Untitled"
		if session, err := a.store.GetSession(r.Context(), tx.Usage.ChatSessionID); err == nil && session.Title != "" {
			title = session.Title
		}
		view.Usage = &transactionUsageView{
			ChatSessionID:    tx.Usage.ChatSessionID,
			ChatSessionTitle: title,
			Models:           tx.Usage.Models,
		}
	}
	return view
}

func (a *App) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	account, err := a.currentAccount(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Valid session required")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	filter := store.TransactionFilter{
		OwnerID: account.ID,
		Type:    r.URL.Query().Get("type"),
		Status:  r.URL.Query().Get("status"),
		Page:    page,
		Limit:   limit,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	transactions, total, err := a.store.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GET_TRANSACTIONS_ERROR", "Failed to get transactions")
		return
	}

	views := make([]transactionView, 0, len(transactions))
	for _, tx := range transactions {
		views = append(views, a.renderTransaction(r, tx))
	}

	totalPages := int(math.Ceil(float64(total) / float64(filter.Limit)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": views,
		"pagination": map[string]interface{}{
			"page":       filter.Page,
			"limit":      filter.Limit,
			"total":      total,
			"totalPages": totalPages,
			"hasNext":    filter.Page*filter.Limit < total,
		},
	})
}

func (a *App) handleTransactionSummary(w http.ResponseWriter, r *http.Request) {
	account, err := a.currentAccount(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Valid session required")
		return
	}

	summary, err := a.store.SummarizeTransactions(r.Context(), account.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GET_SUMMARY_ERROR", "Failed to get summary")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"purchases": map[string]interface{}{
			"totalCredits":  summary.PurchasedCredits,
			"totalSpentSOL": float64(summary.PurchasedLamports) / lamportsPerSOL,
			"count":         summary.PurchaseCount,
		},
		"usage": map[string]interface{}{
			"totalCreditsUsed": summary.UsedCredits,
			"queryCount":       summary.UsageCount,
		},
		"netCredits": summary.NetCredits(),
	})
}

func (a *App) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	account, err := a.currentAccount(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Valid session required")
		return
	}

	tx, err := a.store.GetTransaction(r.Context(), account.ID, r.PathValue("transactionId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "Not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "GET_TRANSACTION_ERROR", "Failed to get transaction")
		return
	}

	writeJSON(w, http.StatusOK, a.renderTransaction(r, tx))
}
