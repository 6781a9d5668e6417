package store

import (
	"context"
	"sort"
	"sync"

	"solchat/pkg/models"
)

// MemoryStore is an in-process Store used by tests and single-node dev
// setups. All methods copy records on the way in and out.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]*models.Account
	sessions     map[string]*models.ChatSession
	messages     map[string]*models.ChatMessage
	transactions map[string]*models.Transaction
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*models.Account),
		sessions:     make(map[string]*models.ChatSession),
		messages:     make(map[string]*models.ChatMessage),
		transactions: make(map[string]*models.Transaction),
	}
}

func copyAccount(a *models.Account) *models.Account {
	copied := *a
	if a.PendingPayment != nil {
		pending := *a.PendingPayment
		copied.PendingPayment = &pending
	}
	return &copied
}

// CreateAccount stores a new account.
func (s *MemoryStore) CreateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = copyAccount(account)
	return nil
}

// GetAccount returns the account or ErrNotFound.
func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAccount(account), nil
}

// UpdateAccount overwrites an existing account.
func (s *MemoryStore) UpdateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; !ok {
		return ErrNotFound
	}
	s.accounts[account.ID] = copyAccount(account)
	return nil
}

// CreateSession stores a new chat session.
func (s *MemoryStore) CreateSession(ctx context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	copied.Models = append([]string(nil), session.Models...)
	s.sessions[session.ID] = &copied
	return nil
}

// UpdateSession overwrites an existing session.
func (s *MemoryStore) UpdateSession(ctx context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	copied := *session
	copied.Models = append([]string(nil), session.Models...)
	s.sessions[session.ID] = &copied
	return nil
}

// GetSession returns the session or ErrNotFound.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *session
	copied.Models = append([]string(nil), session.Models...)
	return &copied, nil
}

// ListSessions returns the owner's sessions, newest first.
func (s *MemoryStore) ListSessions(ctx context.Context, ownerID string) ([]*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sessions []*models.ChatSession
	for _, session := range s.sessions {
		if session.OwnerID == ownerID {
			copied := *session
			copied.Models = append([]string(nil), session.Models...)
			sessions = append(sessions, &copied)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// CreateMessage stores a new chat message.
func (s *MemoryStore) CreateMessage(ctx context.Context, message *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *message
	s.messages[message.ID] = &copied
	return nil
}

// UpdateMessage overwrites an existing message.
func (s *MemoryStore) UpdateMessage(ctx context.Context, message *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[message.ID]; !ok {
		return ErrNotFound
	}
	copied := *message
	s.messages[message.ID] = &copied
	return nil
}

// GetMessage returns the message or ErrNotFound.
func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	message, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *message
	return &copied, nil
}

// ListMessages returns a session's messages in creation order.
func (s *MemoryStore) ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var messages []*models.ChatMessage
	for _, message := range s.messages {
		if message.ChatSessionID == sessionID {
			copied := *message
			messages = append(messages, &copied)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func copyTransaction(tx *models.Transaction) *models.Transaction {
	copied := *tx
	if tx.Solana != nil {
		sol := *tx.Solana
		copied.Solana = &sol
	}
	if tx.Usage != nil {
		usage := *tx.Usage
		usage.Models = append([]string(nil), tx.Usage.Models...)
		copied.Usage = &usage
	}
	return &copied
}

// CreateTransaction stores a new transaction.
func (s *MemoryStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = copyTransaction(tx)
	return nil
}

// GetTransaction returns the owner's transaction or ErrNotFound.
func (s *MemoryStore) GetTransaction(ctx context.Context, ownerID, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok || tx.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return copyTransaction(tx), nil
}

// ListTransactions returns one page of the owner's transactions, newest
// first, plus the total match count.
func (s *MemoryStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, int, error) {
	normalizeFilter(&filter)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Transaction
	for _, tx := range s.transactions {
		if tx.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		matched = append(matched, tx)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}

	page := make([]*models.Transaction, 0, end-start)
	for _, tx := range matched[start:end] {
		page = append(page, copyTransaction(tx))
	}
	return page, total, nil
}

// SummarizeTransactions aggregates the owner's completed purchases and
// usage debits.
func (s *MemoryStore) SummarizeTransactions(ctx context.Context, ownerID string) (*TransactionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &TransactionSummary{}
	for _, tx := range s.transactions {
		if tx.OwnerID != ownerID || tx.Status != models.TransactionCompleted {
			continue
		}
		switch tx.Type {
		case models.TransactionCreditPurchase:
			summary.PurchasedCredits += tx.CreditsAmount
			summary.PurchaseCount++
			if tx.Solana != nil {
				summary.PurchasedLamports += tx.Solana.AmountLamports
			}
		case models.TransactionQueryUsage:
			credits := tx.CreditsAmount
			if credits < 0 {
				credits = -credits
			}
			summary.UsedCredits += credits
			summary.UsageCount++
		}
	}
	return summary, nil
}
