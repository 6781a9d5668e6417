// Package payment implements the x402-style payment challenge protocol:
// a facilitator issues "payment required" challenges, reconciles them
// against blockchain-confirmed transfers, and keeps a ledger of their
// lifecycle. Challenges expire on a fixed TTL and are garbage-collected
// by a periodic sweep after a retention window.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"solchat/pkg/models"
)

const (
	// DefaultTTL is how long a challenge stays payable.
	DefaultTTL = 10 * time.Minute

	// DefaultRetention is how long expired challenges remain pollable
	// before the sweep removes them.
	DefaultRetention = time.Hour

	// CleanupInterval is how often the background sweep runs.
	CleanupInterval = 10 * time.Minute

	// expiryInterval is how often pending challenges are checked for
	// expiry between reads.
	expiryInterval = time.Minute
)

var (
	// ErrAlreadyProcessed is returned when verification is attempted on a
	// challenge that has already completed.
	ErrAlreadyProcessed = errors.New("payment already processed")

	// ErrExpired is returned when verification is attempted on an expired
	// challenge.
	ErrExpired = errors.New("payment expired")

	// ErrVerification is returned when the chain verifier rejects a
	// settlement or the verification transport fails. In both cases the
	// caller may retry before the challenge expires: a transport fault
	// leaves it pending, a rejection marks it failed but not closed.
	ErrVerification = errors.New("payment verification failed")
)

// Verification is the chain verifier's answer for one settlement check.
type Verification struct {
	Valid bool
	// Error is the rejection reason when Valid is false.
	Error string
}

// Verifier confirms whether a matching on-chain transfer exists and is
// final. Implementations must be safe to call repeatedly for the same
// signature (idempotent read of finalized chain state).
type Verifier interface {
	VerifyPayment(ctx context.Context, signature, payerWallet string, expectedLamports int64) (Verification, error)
}

// Owner identifies who a challenge settles credits for.
type Owner struct {
	ID   string
	Kind models.OwnerKind
}

// Result is returned on successful verification so the caller can apply
// the balance credit and record the purchase transaction.
type Result struct {
	Credits    int
	OwnerID    string
	OwnerKind  models.OwnerKind
	UserWallet string
	Signature  string
	Amount     int64
	Network    string
}

// Facilitator issues payment challenges and drives their verification
// against the chain verifier.
type Facilitator struct {
	ledger   Ledger
	verifier Verifier

	recipient           string
	network             string
	creditPriceLamports int64
	ttl                 time.Duration
	retention           time.Duration

	now func() time.Time
}

// Config holds the facilitator's pricing and network parameters.
type Config struct {
	// Recipient is the treasury wallet settlements are sent to.
	Recipient string
	// Network is the Solana cluster name (mainnet-beta, devnet, testnet).
	Network string
	// CreditPriceLamports is the fixed price of one credit.
	CreditPriceLamports int64
	// TTL overrides DefaultTTL when positive.
	TTL time.Duration
	// Retention overrides DefaultRetention when positive.
	Retention time.Duration
}

// NewFacilitator creates a facilitator over the given ledger and verifier.
func NewFacilitator(ledger Ledger, verifier Verifier, cfg Config) *Facilitator {
	f := &Facilitator{
		ledger:              ledger,
		verifier:            verifier,
		recipient:           cfg.Recipient,
		network:             cfg.Network,
		creditPriceLamports: cfg.CreditPriceLamports,
		ttl:                 cfg.TTL,
		retention:           cfg.Retention,
		now:                 time.Now,
	}
	if f.ttl <= 0 {
		f.ttl = DefaultTTL
	}
	if f.retention <= 0 {
		f.retention = DefaultRetention
	}
	return f
}

// SetClock replaces the facilitator's time source. Tests use this to
// drive expiry deterministically.
func (f *Facilitator) SetClock(now func() time.Time) { f.now = now }

// CreateChallenge registers a fresh pending challenge for the given
// credit amount. The returned challenge carries everything the client
// needs to settle and everything the caller needs to persist the
// pending-payment pointer on the owning account.
func (f *Facilitator) CreateChallenge(creditsRequired int, owner Owner, ownerWallet string) (*models.PaymentChallenge, error) {
	if creditsRequired <= 0 {
		return nil, fmt.Errorf("credits required must be positive, got %d", creditsRequired)
	}

	now := f.now()
	reference := uuid.New().String()
	challenge := &models.PaymentChallenge{
		Reference:       reference,
		CreditsRequired: creditsRequired,
		AmountLamports:  int64(creditsRequired) * f.creditPriceLamports,
		Recipient:       f.recipient,
		Network:         f.network,
		Memo:            fmt.Sprintf("solchat-credits:%s", reference),
		OwnerID:         owner.ID,
		OwnerKind:       owner.Kind,
		OwnerWallet:     ownerWallet,
		Status:          models.ChallengePending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(f.ttl),
	}

	if err := f.ledger.Put(challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// PaymentRequired is the HTTP 402 response body.
type PaymentRequired struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Payment PaymentDetails `json:"payment"`
	Message string         `json:"message"`
}

// PaymentDetails tells the client exactly what to pay and where.
type PaymentDetails struct {
	Reference string `json:"reference"`
	Network   string `json:"network"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Memo      string `json:"memo"`
	Credits   int    `json:"credits"`
	ExpiresAt string `json:"expiresAt"`
	VerifyURL string `json:"verifyUrl"`
}

// RenderChallenge produces the 402 payload for a challenge. Pure
// rendering, independent of transport.
func RenderChallenge(challenge *models.PaymentChallenge) PaymentRequired {
	return PaymentRequired{
		Error: "Payment Required",
		Code:  "INSUFFICIENT_CREDITS",
		Payment: PaymentDetails{
			Reference: challenge.Reference,
			Network:   challenge.Network,
			Recipient: challenge.Recipient,
			Amount:    challenge.AmountLamports,
			Currency:  "lamports",
			Memo:      challenge.Memo,
			Credits:   challenge.CreditsRequired,
			ExpiresAt: challenge.ExpiresAt.UTC().Format(time.RFC3339),
			VerifyURL: "/api/pay/verify/" + challenge.Reference,
		},
		Message: fmt.Sprintf("Need %d credits. Send %d lamports to %s.",
			challenge.CreditsRequired, challenge.AmountLamports, challenge.Recipient),
	}
}

// Status returns the current state of a challenge, applying lazy expiry
// first so a poll observes expiry promptly rather than at sweep time.
func (f *Facilitator) Status(reference string) (*models.PaymentChallenge, error) {
	f.ledger.ExpireDue(f.now())
	return f.ledger.Get(reference)
}

// Verify reconciles a settlement signature against a pending challenge.
//
// It fails fast without a chain call when the reference is unknown,
// already completed, or expired. A verifier rejection transitions the
// challenge to failed with the reason, but a later call with a
// corrected signature can still complete it before the TTL. A
// transport fault is reported as ErrVerification and leaves the
// challenge pending.
func (f *Facilitator) Verify(ctx context.Context, reference, signature, payerWallet string) (*Result, error) {
	challenge, err := f.Status(reference)
	if err != nil {
		return nil, err
	}

	switch challenge.Status {
	case models.ChallengeCompleted:
		return nil, ErrAlreadyProcessed
	case models.ChallengeExpired:
		return nil, ErrExpired
	}

	verification, err := f.verifier.VerifyPayment(ctx, signature, payerWallet, challenge.AmountLamports)
	if err != nil {
		// Transport fault: the chain gave no definitive answer, so the
		// challenge stays pending and the client may retry.
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	if !verification.Valid {
		if markErr := f.ledger.MarkFailed(reference, verification.Error); markErr != nil && !errors.Is(markErr, ErrAlreadyFinal) {
			return nil, markErr
		}
		return nil, fmt.Errorf("%w: %s", ErrVerification, verification.Error)
	}

	if err := f.ledger.MarkCompleted(reference, signature, f.now()); err != nil {
		if errors.Is(err, ErrAlreadyFinal) {
			// A concurrent verify or expiry tick won the race; report
			// whichever transition stuck.
			if current, getErr := f.ledger.Get(reference); getErr == nil && current.Status == models.ChallengeExpired {
				return nil, ErrExpired
			}
			return nil, ErrAlreadyProcessed
		}
		return nil, err
	}

	return &Result{
		Credits:    challenge.CreditsRequired,
		OwnerID:    challenge.OwnerID,
		OwnerKind:  challenge.OwnerKind,
		UserWallet: challenge.OwnerWallet,
		Signature:  signature,
		Amount:     challenge.AmountLamports,
		Network:    challenge.Network,
	}, nil
}

// Cleanup expires overdue challenges and sweeps those past retention.
func (f *Facilitator) Cleanup() {
	now := f.now()
	f.ledger.ExpireDue(now)
	if removed := f.ledger.Sweep(now, f.retention); removed > 0 {
		log.Printf("Payment ledger sweep removed %d challenge(s)", removed)
	}
}

// Run drives expiry checks and cleanup sweeps until ctx is cancelled.
// Intended to run in a goroutine for the lifetime of the process.
func (f *Facilitator) Run(ctx context.Context) {
	expiry := time.NewTicker(expiryInterval)
	cleanup := time.NewTicker(CleanupInterval)
	defer expiry.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-expiry.C:
			f.ledger.ExpireDue(f.now())
		case <-cleanup.C:
			f.Cleanup()
		}
	}
}
