// Package credits decides whether an account may dispatch a query to a
// set of models. Admission compares the credits required against the
// account's on-chain credit balance; a shortfall produces a payment
// challenge instead of an approval.
package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solchat/internal/payment"
	"solchat/pkg/models"
)

// ErrNoModels is returned when admission is requested for an empty model
// set. No challenge is created.
var ErrNoModels = errors.New("at least one model is required")

// WalletRequiredError is returned when the account has no linked wallet.
// A challenge would be meaningless with nowhere to settle from, so none
// is created; the error carries the credit count for the response body.
type WalletRequiredError struct {
	Required int
}

func (e *WalletRequiredError) Error() string {
	return fmt.Sprintf("wallet required: %d credits needed and no wallet linked", e.Required)
}

// DefaultModelCosts is the per-query credit cost of each known model.
// Models not listed cost 1 credit.
var DefaultModelCosts = map[string]int{
	"gpt-4o":           3,
	"gpt-4o-mini":      1,
	"gpt-4.1":          3,
	"gemini-2.0-flash": 1,
	"gemini-2.5-pro":   3,
}

// BalanceSource reads an account's on-chain credit balance.
type BalanceSource interface {
	CreditBalance(ctx context.Context, wallet string) (int64, error)
}

// AccountSaver persists the pending-payment pointer mirrored onto the
// account when a challenge is issued.
type AccountSaver interface {
	UpdateAccount(ctx context.Context, account *models.Account) error
}

// Admission is the outcome of a successful or payment-gated admission
// check. Exactly one of Granted or Challenge describes the outcome.
type Admission struct {
	Required int
	Balance  int64
	Granted  bool
	// Challenge is set when the balance was insufficient; it is either a
	// freshly minted challenge or the account's existing pending one.
	Challenge *models.PaymentChallenge
}

// Missing is the credit shortfall the challenge covers.
func (a *Admission) Missing() int {
	missing := a.Required - int(a.Balance)
	if missing < 0 {
		return 0
	}
	return missing
}

// Gate admits requests that are covered by the account's credit balance
// and issues payment challenges for the rest.
type Gate struct {
	balances    BalanceSource
	facilitator *payment.Facilitator
	accounts    AccountSaver
	costs       map[string]int
}

// NewGate creates a credit gate. A nil costs map uses DefaultModelCosts.
func NewGate(balances BalanceSource, facilitator *payment.Facilitator, accounts AccountSaver, costs map[string]int) *Gate {
	if costs == nil {
		costs = DefaultModelCosts
	}
	return &Gate{
		balances:    balances,
		facilitator: facilitator,
		accounts:    accounts,
		costs:       costs,
	}
}

// RequiredCredits sums the per-model cost over the distinct requested
// models. Duplicates collapse; unknown models cost 1. Deterministic, no
// I/O.
func (g *Gate) RequiredCredits(modelIDs []string) (int, error) {
	if len(modelIDs) == 0 {
		return 0, ErrNoModels
	}

	seen := make(map[string]bool, len(modelIDs))
	total := 0
	for _, id := range modelIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		cost, ok := g.costs[id]
		if !ok {
			cost = 1
		}
		total += cost
	}
	return total, nil
}

// Admit checks whether the account's balance covers a query to the given
// models. On a shortfall it returns (or re-issues) a payment challenge
// for the missing credits and mirrors its reference onto the account.
//
// Admission is idempotent under client retries: while an unexpired
// challenge is pending for the same shortfall, a repeat call returns
// that challenge instead of minting a duplicate.
func (g *Gate) Admit(ctx context.Context, account *models.Account, modelIDs []string) (*Admission, error) {
	required, err := g.RequiredCredits(modelIDs)
	if err != nil {
		return nil, err
	}

	if !account.HasWallet() {
		return nil, &WalletRequiredError{Required: required}
	}

	balance, err := g.balances.CreditBalance(ctx, account.Wallet)
	if err != nil {
		return nil, fmt.Errorf("credit balance lookup: %w", err)
	}

	if balance >= int64(required) {
		return &Admission{Required: required, Balance: balance, Granted: true}, nil
	}

	missing := required - int(balance)

	if existing := g.pendingChallenge(account, missing); existing != nil {
		return &Admission{Required: required, Balance: balance, Challenge: existing}, nil
	}

	challenge, err := g.facilitator.CreateChallenge(missing, payment.Owner{ID: account.ID, Kind: account.Kind}, account.Wallet)
	if err != nil {
		return nil, fmt.Errorf("create payment challenge: %w", err)
	}

	account.PendingPayment = &models.PendingPayment{
		Reference: challenge.Reference,
		Amount:    challenge.AmountLamports,
		Credits:   missing,
		CreatedAt: challenge.CreatedAt,
		ExpiresAt: challenge.ExpiresAt,
	}
	if err := g.accounts.UpdateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("persist pending payment: %w", err)
	}

	return &Admission{Required: required, Balance: balance, Challenge: challenge}, nil
}

// pendingChallenge returns the account's outstanding challenge when it is
// still pending and covers the same shortfall.
func (g *Gate) pendingChallenge(account *models.Account, missing int) *models.PaymentChallenge {
	pointer := account.PendingPayment
	if pointer == nil || pointer.Credits != missing {
		return nil
	}
	if !pointer.ExpiresAt.After(time.Now()) {
		return nil
	}

	challenge, err := g.facilitator.Status(pointer.Reference)
	if err != nil || challenge.Status != models.ChallengePending {
		return nil
	}
	return challenge
}
