package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"solchat/pkg/models"
)

// storeUnderTest runs the conformance suite over both implementations.
type storeUnderTest struct {
	name string
	open func(t *testing.T) Store
}

func allStores() []storeUnderTest {
	return []storeUnderTest{
		{
			name: "memory",
			open: func(t *testing.T) Store { return NewMemoryStore() },
		},
		{
			name: "sqlite",
			open: func(t *testing.T) Store {
				s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
				if err != nil {
					t.Fatalf("OpenSQLite failed: %v", err)
				}
				t.Cleanup(func() { s.Close() })
				return s
			},
		},
	}
}

func testTime(offset time.Duration) time.Time {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(offset)
}

func TestAccountRoundTrip(t *testing.T) {
	for _, st := range allStores() {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			ctx := context.Background()

			account := &models.Account{
				ID:        "acc-1",
				Kind:      models.OwnerUser,
				Email:     "a@example.com",
				Wallet:    "wallet-1",
				CreatedAt: testTime(0),
				PendingPayment: &models.PendingPayment{
					Reference: "ref-1",
					Amount:    2_000_000,
					Credits:   2,
					CreatedAt: testTime(0),
					ExpiresAt: testTime(10 * time.Minute),
				},
			}
			if err := s.CreateAccount(ctx, account); err != nil {
				t.Fatalf("CreateAccount failed: %v", err)
			}

			got, err := s.GetAccount(ctx, "acc-1")
			if err != nil {
				t.Fatalf("GetAccount failed: %v", err)
			}
			if got.Email != "a@example.com" || got.Wallet != "wallet-1" {
				t.Errorf("Unexpected account: %+v", got)
			}
			if got.PendingPayment == nil || got.PendingPayment.Reference != "ref-1" {
				t.Errorf("Pending payment not preserved: %+v", got.PendingPayment)
			}
			if !got.PendingPayment.ExpiresAt.Equal(testTime(10 * time.Minute)) {
				t.Errorf("Pending payment expiry drifted: %v", got.PendingPayment.ExpiresAt)
			}

			// Clearing the pending pointer must persist.
			got.PendingPayment = nil
			got.Wallet = "wallet-2"
			if err := s.UpdateAccount(ctx, got); err != nil {
				t.Fatalf("UpdateAccount failed: %v", err)
			}
			updated, err := s.GetAccount(ctx, "acc-1")
			if err != nil {
				t.Fatalf("GetAccount failed: %v", err)
			}
			if updated.PendingPayment != nil {
				t.Error("Pending payment should be cleared")
			}
			if updated.Wallet != "wallet-2" {
				t.Errorf("Expected wallet-2, got %q", updated.Wallet)
			}
		})
	}
}

func TestAccountNotFound(t *testing.T) {
	for _, st := range allStores() {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			ctx := context.Background()

			if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
			err := s.UpdateAccount(ctx, &models.Account{ID: "missing", Kind: models.OwnerUser})
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound from update, got %v", err)
			}
		})
	}
}

func TestSessionsListNewestFirst(t *testing.T) {
	for _, st := range allStores() {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				session := &models.ChatSession{
					ID:        fmt.Sprintf("session-%d", i),
					OwnerID:   "acc-1",
					OwnerKind: models.OwnerUser,
					Title:     fmt.Sprintf("title %d", i),
					Models:    []string{"gpt-4o", "gemini-2.0-flash"},
					Status:    models.SessionActive,
					CreatedAt: testTime(time.Duration(i) * time.Minute),
				}
				if err := s.CreateSession(ctx, session); err != nil {
					t.Fatalf("CreateSession failed: %v", err)
				}
			}
			// Another owner's session must not leak into the list.
			other := &models.ChatSession{
				ID: "session-other", OwnerID: "acc-2", OwnerKind: models.OwnerUser,
				Models: []string{"gpt-4o"}, Status: models.SessionActive, CreatedAt: testTime(0),
			}
			if err := s.CreateSession(ctx, other); err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}

			sessions, err := s.ListSessions(ctx, "acc-1")
			if err != nil {
				t.Fatalf("ListSessions failed: %v", err)
			}
			if len(sessions) != 3 {
				t.Fatalf("Expected 3 sessions, got %d", len(sessions))
			}
			for i, session := range sessions {
				want := fmt.Sprintf("session-%d", 2-i)
				if session.ID != want {
					t.Errorf("Position %d: expected %s, got %s", i, want, session.ID)
				}
			}
			if len(sessions[0].Models) != 2 {
				t.Errorf("Models not preserved: %v", sessions[0].Models)
			}
		})
	}
}

func TestSessionUpdate(t *testing.T) {
	for _, st := range allStores() {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			ctx := context.Background()

			session := &models.ChatSession{
				ID: "session-1", OwnerID: "acc-1", OwnerKind: models.OwnerUser,
				Title: "New Chat", Models: []string{"gpt-4o"},
				Status: models.SessionActive, CreatedAt: testTime(0),
			}
			if err := s.CreateSession(ctx, session); err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}

			session.Title = "Weather in Paris"
			if err := s.UpdateSession(ctx, session); err != nil {
				t.Fatalf("UpdateSession failed: %v", err)
			}

			got, err := s.GetSession(ctx, "session-1")
			if err != nil {
				t.Fatalf("GetSession failed: %v", err)
			}
			if got.Title != "Weather in Paris" {
				t.Errorf("Expected updated title, got %q", got.Title)
			}
		})
	}
}

func TestMessagesListInCreationOrder(t *testing.T) {
	for _, st := range allStores() {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			ctx := context.Background()

			messages := []*models.ChatMessage{
				{ID: "m1", ChatSessionID: "session-1", Role: models.RoleUser, Content: "hi", Status: models.MessageCompleted, CreatedAt: testTime(0)},
				{ID: "m2", ChatSessionID: "session-1", Role: models.RoleAssistant, Model: "gpt-4o", Content: "hello", Status: models.MessageCompleted, CreatedAt: testTime(time.Second)},
				{ID: "m3", ChatSessionID: "session-1", Role: models.RoleAssistant, Model: "gemini-2.0-flash", Content: "", Status: models.MessageError, Error: "upstream 500", CreatedAt: testTime(time.Second)},
				{ID: "m4", ChatSessionID: "session-2", Role: models.RoleUser, Content: "other session", Status: models.MessageCompleted, CreatedAt: testTime(0)},
			}
			for _, m := range messages {
				if err := s.CreateMessage(ctx, m); err != nil {
					t.Fatalf("CreateMessage failed: %v", err)
				}
			}

			listed, err := s.ListMessages(ctx, "session-1")
			if err != nil {
				t.Fatalf("ListMessages failed: %v", err)
			}
			if len(listed) != 3 {
				t.Fatalf("Expected 3 messages, got %d", len(listed))
			}
			if listed[0].ID != "m1" {
				t.Errorf("Expected oldest message first, got %s", listed[0].ID)
			}

			got, err := s.GetMessage(ctx, "m3")
			if err != nil {
				t.Fatalf("GetMessage failed: %v", err)
			}
			if got.Status != models.MessageError || got.Error != "upstream 500" {
				t.Errorf("Error status not preserved: %+v", got)
			}
		})
	}
}

func TestMessageUpdate(t *testing.T) {
	for _, st := range allStores() {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			ctx := context.Background()

			message := &models.ChatMessage{
				ID: "m1", ChatSessionID: "session-1", Role: models.RoleUser,
				Content: "hi", CreatedAt: testTime(0),
			}
			if err := s.CreateMessage(ctx, message); err != nil {
				t.Fatalf("CreateMessage failed: %v", err)
			}

			message.Status = models.MessageStreamed
			if err := s.UpdateMessage(ctx, message); err != nil {
				t.Fatalf("UpdateMessage failed: %v", err)
			}

			got, err := s.GetMessage(ctx, "m1")
			if err != nil {
				t.Fatalf("GetMessage failed: %v", err)
			}
			if got.Status != models.MessageStreamed {
				t.Errorf("Expected streamed status, got %q", got.Status)
			}

			missing := &models.ChatMessage{ID: "nope", Status: models.MessageStreamed}
			if err := s.UpdateMessage(ctx, missing); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound for unknown message, got %v", err)
			}
		})
	}
}

func seedTransactions(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	transactions := []*models.Transaction{
		{
			ID: "t1", OwnerID: "acc-1", OwnerKind: models.OwnerUser,
			Type: models.TransactionCreditPurchase, CreditsAmount: 5,
			Status: models.TransactionCompleted, PaymentReference: "ref-1",
			Solana: &models.SolanaDetails{
				Signature: "sig-1", PayerWallet: "payer", RecipientWallet: "treasury",
				AmountLamports: 5_000_000, Network: "devnet", ConfirmedAt: testTime(0),
			},
			CreatedAt: testTime(0),
		},
		{
			ID: "t2", OwnerID: "acc-1", OwnerKind: models.OwnerUser,
			Type: models.TransactionQueryUsage, CreditsAmount: -3,
			Status: models.TransactionCompleted,
			Usage: &models.UsageDetails{
				ChatSessionID: "session-1", QueryID: "query-1", Models: []string{"gpt-4o"},
			},
			CreatedAt: testTime(time.Minute),
		},
		{
			ID: "t3", OwnerID: "acc-1", OwnerKind: models.OwnerUser,
			Type: models.TransactionCreditPurchase, CreditsAmount: 2,
			Status: models.TransactionFailed, Error: "insufficient amount",
			CreatedAt: testTime(2 * time.Minute),
		},
		{
			ID: "t4", OwnerID: "acc-2", OwnerKind: models.OwnerUser,
			Type: models.TransactionCreditPurchase, CreditsAmount: 9,
			Status: models.TransactionCompleted, CreatedAt: testTime(0),
		},
	}
	for _, tx := range transactions {
		if err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
	}
}

func TestListTransactions(t *testing.T) {
	for _, st := range allStores() {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			seedTransactions(t, s)
			ctx := context.Background()

			page, total, err := s.ListTransactions(ctx, TransactionFilter{OwnerID: "acc-1"})
			if err != nil {
				t.Fatalf("ListTransactions failed: %v", err)
			}
			if total != 3 || len(page) != 3 {
				t.Fatalf("Expected 3 transactions, got %d of %d", len(page), total)
			}
			if page[0].ID != "t3" || page[2].ID != "t1" {
				t.Errorf("Expected newest first, got %s..%s", page[0].ID, page[2].ID)
			}

			page, total, err = s.ListTransactions(ctx, TransactionFilter{
				OwnerID: "acc-1", Type: models.TransactionCreditPurchase, Status: models.TransactionCompleted,
			})
			if err != nil {
				t.Fatalf("ListTransactions failed: %v", err)
			}
			if total != 1 || len(page) != 1 || page[0].ID != "t1" {
				t.Errorf("Filter mismatch: total=%d page=%v", total, page)
			}
			if page[0].Solana == nil || page[0].Solana.Signature != "sig-1" {
				t.Errorf("Solana details not preserved: %+v", page[0].Solana)
			}

			page, total, err = s.ListTransactions(ctx, TransactionFilter{OwnerID: "acc-1", Page: 2, Limit: 2})
			if err != nil {
				t.Fatalf("ListTransactions failed: %v", err)
			}
			if total != 3 || len(page) != 1 || page[0].ID != "t1" {
				t.Errorf("Pagination mismatch: total=%d page=%v", total, page)
			}
		})
	}
}

func TestGetTransactionScopedToOwner(t *testing.T) {
	for _, st := range allStores() {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			seedTransactions(t, s)
			ctx := context.Background()

			tx, err := s.GetTransaction(ctx, "acc-1", "t2")
			if err != nil {
				t.Fatalf("GetTransaction failed: %v", err)
			}
			if tx.Usage == nil || tx.Usage.QueryID != "query-1" {
				t.Errorf("Usage details not preserved: %+v", tx.Usage)
			}

			if _, err := s.GetTransaction(ctx, "acc-2", "t2"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Cross-owner lookup must report ErrNotFound, got %v", err)
			}
		})
	}
}

func TestSummarizeTransactions(t *testing.T) {
	for _, st := range allStores() {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			seedTransactions(t, s)

			summary, err := s.SummarizeTransactions(context.Background(), "acc-1")
			if err != nil {
				t.Fatalf("SummarizeTransactions failed: %v", err)
			}
			if summary.PurchasedCredits != 5 || summary.PurchaseCount != 1 {
				t.Errorf("Failed purchases must not count: %+v", summary)
			}
			if summary.PurchasedLamports != 5_000_000 {
				t.Errorf("Expected 5000000 lamports purchased, got %d", summary.PurchasedLamports)
			}
			if summary.UsedCredits != 3 || summary.UsageCount != 1 {
				t.Errorf("Usage debit must count as positive credits used: %+v", summary)
			}
			if summary.NetCredits() != 2 {
				t.Errorf("Expected net 2 credits, got %d", summary.NetCredits())
			}
		})
	}
}
