package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"solchat/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	wallet TEXT NOT NULL DEFAULT '',
	pending_payment TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	owner_kind TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	models TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_owner ON chat_sessions(owner_id, created_at);

CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	chat_session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(chat_session_id, created_at);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	owner_kind TEXT NOT NULL,
	type TEXT NOT NULL,
	credits_amount INTEGER NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	solana TEXT,
	usage TEXT,
	payment_reference TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_owner ON transactions(owner_id, created_at);
`

// SQLiteStore is the durable Store backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path and
// applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// CreateAccount inserts a new account row.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *models.Account) error {
	pending, err := encodeJSON(pendingOrNil(account.PendingPayment))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, kind, email, wallet, pending_payment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID, account.Kind, account.Email, account.Wallet, pending, encodeTime(account.CreatedAt))
	return err
}

func pendingOrNil(p *models.PendingPayment) interface{} {
	if p == nil {
		return nil
	}
	return p
}

// GetAccount loads an account by id.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, email, wallet, pending_payment, created_at FROM accounts WHERE id = ?`, id)

	var account models.Account
	var kind, createdAt string
	var pending sql.NullString
	if err := row.Scan(&account.ID, &kind, &account.Email, &account.Wallet, &pending, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	account.Kind = models.OwnerKind(kind)
	account.CreatedAt = decodeTime(createdAt)
	if pending.Valid {
		var p models.PendingPayment
		if err := json.Unmarshal([]byte(pending.String), &p); err != nil {
			return nil, fmt.Errorf("decode pending payment: %w", err)
		}
		account.PendingPayment = &p
	}
	return &account, nil
}

// UpdateAccount overwrites an existing account row.
func (s *SQLiteStore) UpdateAccount(ctx context.Context, account *models.Account) error {
	pending, err := encodeJSON(pendingOrNil(account.PendingPayment))
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET kind = ?, email = ?, wallet = ?, pending_payment = ? WHERE id = ?`,
		account.Kind, account.Email, account.Wallet, pending, account.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession inserts a new chat session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.ChatSession) error {
	modelsJSON, err := json.Marshal(session.Models)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, owner_id, owner_kind, title, models, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.OwnerID, session.OwnerKind, session.Title, string(modelsJSON), session.Status, encodeTime(session.CreatedAt))
	return err
}

func scanSession(scanner interface{ Scan(...interface{}) error }) (*models.ChatSession, error) {
	var session models.ChatSession
	var ownerKind, modelsJSON, status, createdAt string
	if err := scanner.Scan(&session.ID, &session.OwnerID, &ownerKind, &session.Title, &modelsJSON, &status, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	session.OwnerKind = models.OwnerKind(ownerKind)
	session.Status = models.SessionStatus(status)
	session.CreatedAt = decodeTime(createdAt)
	if err := json.Unmarshal([]byte(modelsJSON), &session.Models); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	return &session, nil
}

// UpdateSession overwrites an existing session row.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *models.ChatSession) error {
	modelsJSON, err := json.Marshal(session.Models)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, models = ?, status = ? WHERE id = ?`,
		session.Title, string(modelsJSON), session.Status, session.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession loads a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, owner_kind, title, models, status, created_at FROM chat_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns the owner's sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, ownerID string) ([]*models.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, owner_kind, title, models, status, created_at FROM chat_sessions WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// CreateMessage inserts a new chat message row.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *models.ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, chat_session_id, role, model, content, status, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.ChatSessionID, message.Role, message.Model, message.Content, message.Status, message.Error, encodeTime(message.CreatedAt))
	return err
}

// UpdateMessage overwrites an existing message row.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, message *models.ChatMessage) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chat_messages SET content = ?, status = ?, error = ? WHERE id = ?`,
		message.Content, message.Status, message.Error, message.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessage(scanner interface{ Scan(...interface{}) error }) (*models.ChatMessage, error) {
	var message models.ChatMessage
	var status, createdAt string
	if err := scanner.Scan(&message.ID, &message.ChatSessionID, &message.Role, &message.Model, &message.Content, &status, &message.Error, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	message.Status = models.MessageStatus(status)
	message.CreatedAt = decodeTime(createdAt)
	return &message, nil
}

// GetMessage loads a message by id.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.ChatMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_session_id, role, model, content, status, error, created_at FROM chat_messages WHERE id = ?`, id)
	return scanMessage(row)
}

// ListMessages returns a session's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_session_id, role, model, content, status, error, created_at FROM chat_messages WHERE chat_session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

// CreateTransaction inserts a new transaction row.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	solana, err := encodeJSON(solanaOrNil(tx.Solana))
	if err != nil {
		return err
	}
	usage, err := encodeJSON(usageOrNil(tx.Usage))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, owner_id, owner_kind, type, credits_amount, status, error, solana, usage, payment_reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.OwnerID, tx.OwnerKind, tx.Type, tx.CreditsAmount, tx.Status, tx.Error, solana, usage, tx.PaymentReference, encodeTime(tx.CreatedAt))
	return err
}

func solanaOrNil(d *models.SolanaDetails) interface{} {
	if d == nil {
		return nil
	}
	return d
}

func usageOrNil(d *models.UsageDetails) interface{} {
	if d == nil {
		return nil
	}
	return d
}

func scanTransaction(scanner interface{ Scan(...interface{}) error }) (*models.Transaction, error) {
	var tx models.Transaction
	var ownerKind, createdAt string
	var solana, usage sql.NullString
	if err := scanner.Scan(&tx.ID, &tx.OwnerID, &ownerKind, &tx.Type, &tx.CreditsAmount, &tx.Status, &tx.Error, &solana, &usage, &tx.PaymentReference, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tx.OwnerKind = models.OwnerKind(ownerKind)
	tx.CreatedAt = decodeTime(createdAt)
	if solana.Valid {
		var details models.SolanaDetails
		if err := json.Unmarshal([]byte(solana.String), &details); err != nil {
			return nil, fmt.Errorf("decode solana details: %w", err)
		}
		tx.Solana = &details
	}
	if usage.Valid {
		var details models.UsageDetails
		if err := json.Unmarshal([]byte(usage.String), &details); err != nil {
			return nil, fmt.Errorf("decode usage details: %w", err)
		}
		tx.Usage = &details
	}
	return &tx, nil
}

const transactionColumns = `id, owner_id, owner_kind, type, credits_amount, status, error, solana, usage, payment_reference, created_at`

// GetTransaction loads the owner's transaction by id.
func (s *SQLiteStore) GetTransaction(ctx context.Context, ownerID, id string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	return scanTransaction(row)
}

// ListTransactions returns one page of the owner's transactions, newest
// first, plus the total match count.
func (s *SQLiteStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, int, error) {
	normalizeFilter(&filter)

	where := []string{"owner_id = ?"}
	args := []interface{}{filter.OwnerID}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + clause +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, total, rows.Err()
}

// SummarizeTransactions aggregates the owner's completed purchases and
// usage debits.
func (s *SQLiteStore) SummarizeTransactions(ctx context.Context, ownerID string) (*TransactionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, credits_amount, solana FROM transactions WHERE owner_id = ? AND status = ?`,
		ownerID, models.TransactionCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &TransactionSummary{}
	for rows.Next() {
		var txType string
		var credits int
		var solana sql.NullString
		if err := rows.Scan(&txType, &credits, &solana); err != nil {
			return nil, err
		}
		switch txType {
		case models.TransactionCreditPurchase:
			summary.PurchasedCredits += credits
			summary.PurchaseCount++
			if solana.Valid {
				var details models.SolanaDetails
				if err := json.Unmarshal([]byte(solana.String), &details); err == nil {
					summary.PurchasedLamports += details.AmountLamports
				}
			}
		case models.TransactionQueryUsage:
			if credits < 0 {
				credits = -credits
			}
			summary.UsedCredits += credits
			summary.UsageCount++
		}
	}
	return summary, rows.Err()
}
