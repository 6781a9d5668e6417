// Package models defines the shared data types used across the solchat
// backend: accounts, payment challenges, chat sessions, messages and
// credit transactions.
package models

import "time"

// OwnerKind distinguishes registered users from wallet-only guests.
type OwnerKind string

const (
	// OwnerUser is a registered account with an email.
	OwnerUser OwnerKind = "user"
	// OwnerGuest is an anonymous account identified only by its session.
	OwnerGuest OwnerKind = "guest"
)

// Account is a user or guest that can hold a wallet and spend credits.
type Account struct {
	ID    string
	Kind  OwnerKind
	Email string

	// Wallet is the linked Solana wallet address (base58). Empty when no
	// wallet has been connected; such accounts have credit balance 0.
	Wallet string

	// PendingPayment mirrors the reference of an outstanding payment
	// challenge so an interrupted client can resume verification.
	PendingPayment *PendingPayment

	CreatedAt time.Time
}

// HasWallet reports whether a Solana wallet is linked to the account.
func (a *Account) HasWallet() bool { return a.Wallet != "" }

// PendingPayment is the account-side pointer to an outstanding challenge.
type PendingPayment struct {
	Reference string
	Amount    int64
	Credits   int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ChallengeStatus is the lifecycle state of a payment challenge.
type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "pending"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeExpired   ChallengeStatus = "expired"
	ChallengeFailed    ChallengeStatus = "failed"
)

// Final reports whether the status is sticky. Completed and expired
// challenges never transition again; a failed challenge may still be
// retried with a corrected signature.
func (s ChallengeStatus) Final() bool {
	return s == ChallengeCompleted || s == ChallengeExpired
}

// PaymentChallenge is a server-issued, time-bounded request for an
// on-chain payment, identified by a unique reference.
type PaymentChallenge struct {
	Reference       string
	CreditsRequired int
	// AmountLamports is the expected transfer in the smallest on-chain unit.
	AmountLamports int64
	Recipient      string
	Network        string
	Memo           string

	OwnerID     string
	OwnerKind   OwnerKind
	OwnerWallet string

	Status ChallengeStatus
	// Signature is the settling transaction signature; set iff completed.
	Signature string
	// Error holds the verifier's rejection reason when Status is failed.
	Error string

	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt time.Time
}

// Message roles for chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// ChatSession groups the messages of one conversation and records which
// models answer queries in it.
type ChatSession struct {
	ID        string
	OwnerID   string
	OwnerKind OwnerKind
	Title     string
	Models    []string
	Status    SessionStatus
	CreatedAt time.Time
}

// MessageStatus marks how an assistant transcript terminated, or that a
// user query has been consumed by a stream.
type MessageStatus string

const (
	// MessageCompleted means the backend stream finished normally.
	MessageCompleted MessageStatus = "completed"
	// MessageError means the backend failed mid-stream; Content holds
	// whatever partial output had accumulated.
	MessageError MessageStatus = "error"
	// MessageIncomplete means the client disconnected before the stream
	// finished.
	MessageIncomplete MessageStatus = "incomplete"
	// MessageStreamed marks a user query whose fan-out has started. A
	// query is billed and streamed at most once.
	MessageStreamed MessageStatus = "streamed"
)

// ChatMessage is one user query or one per-model assistant transcript.
type ChatMessage struct {
	ID            string
	ChatSessionID string
	Role          string
	// Model is set on assistant messages only.
	Model   string
	Content string
	Status  MessageStatus
	// Error carries the backend failure reason when Status is error.
	Error     string
	CreatedAt time.Time
}

// Transaction types.
const (
	TransactionCreditPurchase = "credit_purchase"
	TransactionQueryUsage     = "query_usage"
	TransactionRefund         = "refund"
)

// Transaction statuses.
const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
)

// SolanaDetails records the on-chain side of a credit purchase.
type SolanaDetails struct {
	Signature       string
	PayerWallet     string
	RecipientWallet string
	AmountLamports  int64
	Network         string
	ConfirmedAt     time.Time
}

// UsageDetails ties a usage debit back to the query it billed.
type UsageDetails struct {
	ChatSessionID string
	QueryID       string
	Models        []string
}

// Transaction is a credit ledger entry: a purchase backed by an on-chain
// transfer, or a usage debit tied to a query fan-out.
type Transaction struct {
	ID        string
	OwnerID   string
	OwnerKind OwnerKind
	Type      string
	// CreditsAmount is positive for purchases, negative for usage.
	CreditsAmount int
	Status        string
	Error         string

	Solana *SolanaDetails
	Usage  *UsageDetails

	// PaymentReference links a purchase back to its challenge.
	PaymentReference string

	CreatedAt time.Time
}
