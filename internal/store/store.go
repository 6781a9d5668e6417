// Package store persists accounts, chat sessions, messages and credit
// transactions behind narrow interfaces. MemoryStore backs tests;
// SQLiteStore backs production. The streaming core only sees the Store
// interface, never a concrete database.
package store

import (
	"context"
	"errors"

	"solchat/pkg/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// AccountStore persists users and guests.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
}

// SessionStore persists chat sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	UpdateSession(ctx context.Context, session *models.ChatSession) error
	ListSessions(ctx context.Context, ownerID string) ([]*models.ChatSession, error)
}

// MessageStore persists user queries and finalized assistant transcripts.
type MessageStore interface {
	CreateMessage(ctx context.Context, message *models.ChatMessage) error
	GetMessage(ctx context.Context, id string) (*models.ChatMessage, error)
	UpdateMessage(ctx context.Context, message *models.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
}

// TransactionFilter selects a page of an owner's transactions.
type TransactionFilter struct {
	OwnerID string
	// Type and Status filter when non-empty.
	Type   string
	Status string
	Page   int
	Limit  int
}

// TransactionSummary aggregates an owner's completed transactions.
type TransactionSummary struct {
	PurchasedCredits  int
	PurchasedLamports int64
	PurchaseCount     int
	UsedCredits       int
	UsageCount        int
}

// NetCredits is purchased minus used.
func (s *TransactionSummary) NetCredits() int {
	return s.PurchasedCredits - s.UsedCredits
}

// TransactionStore persists the credit ledger entries.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	// GetTransaction scopes the lookup to an owner so one account cannot
	// read another's history.
	GetTransaction(ctx context.Context, ownerID, id string) (*models.Transaction, error)
	// ListTransactions returns one page plus the total match count.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, int, error)
	SummarizeTransactions(ctx context.Context, ownerID string) (*TransactionSummary, error)
}

// Store is the full persistence surface.
type Store interface {
	AccountStore
	SessionStore
	MessageStore
	TransactionStore
}

// normalizeFilter clamps pagination the way the API contract promises.
func normalizeFilter(filter *TransactionFilter) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
}
