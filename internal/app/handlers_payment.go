package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"solchat/internal/auth"
	"solchat/internal/payment"
	"solchat/internal/store"
	"solchat/pkg/models"
	"solchat/pkg/utils"
)

type verifyPaymentRequest struct {
	Signature   string `json:"signature"`
	PayerWallet string `json:"payerWallet"`
}

type verifyPaymentResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Credits    int    `json:"credits,omitempty"`
	UserID     string `json:"userId,omitempty"`
	UserType   string `json:"userType,omitempty"`
	UserWallet string `json:"userWallet,omitempty"`
}

func (a *App) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	reference := r.PathValue("reference")

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Signature == "" || req.PayerWallet == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Signature and payer wallet are required")
		return
	}

	log.Printf("Verifying payment %s with signature %s", reference, utils.MaskToken(req.Signature))

	result, err := a.facilitator.Verify(r.Context(), reference, req.Signature, req.PayerWallet)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotFound):
			writeJSON(w, http.StatusNotFound, verifyPaymentResponse{Success: false, Error: "Payment reference not found"})
		case errors.Is(err, payment.ErrAlreadyProcessed):
			writeJSON(w, http.StatusBadRequest, verifyPaymentResponse{Success: false, Error: "Already processed"})
		case errors.Is(err, payment.ErrExpired):
			writeJSON(w, http.StatusBadRequest, verifyPaymentResponse{Success: false, Error: "Payment expired"})
		case errors.Is(err, payment.ErrVerification):
			writeJSON(w, http.StatusBadRequest, verifyPaymentResponse{Success: false, Error: err.Error()})
		default:
			log.Printf("Payment verification error: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Verification failed")
		}
		return
	}

	a.recordPurchase(r, reference, result)

	writeJSON(w, http.StatusOK, verifyPaymentResponse{
		Success:    true,
		Credits:    result.Credits,
		UserID:     result.OwnerID,
		UserType:   string(result.OwnerKind),
		UserWallet: result.UserWallet,
	})
}

// recordPurchase books the settled payment as a credit_purchase
// transaction and clears the account's pending-payment pointer. The
// bookkeeping is idempotent with respect to the challenge: a completed
// challenge can never verify again, so at most one purchase is recorded
// per reference.
func (a *App) recordPurchase(r *http.Request, reference string, result *payment.Result) {
	now := time.Now()
	tx := &models.Transaction{
		ID:            uuid.New().String(),
		OwnerID:       result.OwnerID,
		OwnerKind:     result.OwnerKind,
		Type:          models.TransactionCreditPurchase,
		CreditsAmount: result.Credits,
		Status:        models.TransactionCompleted,
		Solana: &models.SolanaDetails{
			Signature:      result.Signature,
			PayerWallet:    result.UserWallet,
			AmountLamports: result.Amount,
			Network:        result.Network,
			ConfirmedAt:    now,
		},
		PaymentReference: reference,
		CreatedAt:        now,
	}
	if err := a.store.CreateTransaction(r.Context(), tx); err != nil {
		log.Printf("Failed to record purchase transaction for %s: %v", reference, err)
	}

	account, err := a.store.GetAccount(r.Context(), result.OwnerID)
	if err != nil {
		return
	}
	if account.PendingPayment != nil && account.PendingPayment.Reference == reference {
		account.PendingPayment = nil
		if err := a.store.UpdateAccount(r.Context(), account); err != nil {
			log.Printf("Failed to clear pending payment for account %s: %v", account.ID, err)
		}
	}
}

func (a *App) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	challenge, err := a.facilitator.Status(r.PathValue("reference"))
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			writeError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", "Payment reference not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read payment status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reference": challenge.Reference,
		"status":    challenge.Status,
		"credits":   challenge.CreditsRequired,
		"amount":    challenge.AmountLamports,
		"expiresAt": challenge.ExpiresAt.UTC().Format(time.RFC3339),
		"error":     challenge.Error,
	})
}

type connectWalletRequest struct {
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

func (a *App) handleConnectWallet(w http.ResponseWriter, r *http.Request) {
	account, err := a.ensureAccount(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve account")
		return
	}

	var req connectWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Wallet == "" || req.Signature == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing wallet, signature, or message")
		return
	}

	if err := auth.VerifyWalletSignature(req.Wallet, req.Signature, req.Message); err != nil {
		if errors.Is(err, auth.ErrInvalidSignature) {
			writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature")
			return
		}
		writeError(w, http.StatusBadRequest, "VERIFICATION_ERROR", "Verification failed")
		return
	}

	account.Wallet = req.Wallet
	if err := a.store.UpdateAccount(r.Context(), account); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to link wallet")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "wallet": account.Wallet})
}
