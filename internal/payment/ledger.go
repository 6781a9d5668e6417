package payment

import (
	"errors"
	"sync"
	"time"

	"solchat/pkg/models"
)

var (
	// ErrDuplicateReference is returned when a challenge reference is
	// already registered.
	ErrDuplicateReference = errors.New("duplicate payment reference")

	// ErrNotFound is returned when no challenge exists for a reference.
	ErrNotFound = errors.New("payment reference not found")

	// ErrAlreadyFinal is returned when a transition is attempted on a
	// completed or expired challenge.
	ErrAlreadyFinal = errors.New("payment already in final state")
)

// Ledger is the registry of outstanding payment challenges. The in-memory
// implementation below is the default; the interface exists so a durable
// store can back it without touching the facilitator.
type Ledger interface {
	// Put registers a new challenge under its reference.
	Put(challenge *models.PaymentChallenge) error

	// Get returns a copy of the challenge for the reference.
	Get(reference string) (*models.PaymentChallenge, error)

	// MarkCompleted transitions a pending or failed challenge to
	// completed and attaches the settling signature.
	MarkCompleted(reference, signature string, at time.Time) error

	// MarkFailed transitions a pending or failed challenge to failed
	// with the verifier's rejection reason.
	MarkFailed(reference, reason string) error

	// ExpireDue transitions every pending or failed challenge whose
	// deadline has passed to expired, and returns how many were expired.
	ExpireDue(now time.Time) int

	// Sweep deletes every challenge expired for longer than retention,
	// regardless of terminal state. Returns the number removed. At most
	// one sweep runs at a time; overlapping calls are skipped.
	Sweep(now time.Time, retention time.Duration) int
}

// MemoryLedger keeps challenges in a mutex-guarded map. It is the only
// mutable shared state in the payment core; every mutation of a single
// reference is serialized under the lock.
type MemoryLedger struct {
	mu       sync.Mutex
	sweepMu  sync.Mutex
	payments map[string]*models.PaymentChallenge
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{payments: make(map[string]*models.PaymentChallenge)}
}

// Put registers a new challenge. The reference must be fresh.
func (l *MemoryLedger) Put(challenge *models.PaymentChallenge) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.payments[challenge.Reference]; exists {
		return ErrDuplicateReference
	}

	stored := *challenge
	l.payments[challenge.Reference] = &stored
	return nil
}

// Get returns a copy of the stored challenge so callers cannot mutate
// ledger state outside the transition methods.
func (l *MemoryLedger) Get(reference string) (*models.PaymentChallenge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.payments[reference]
	if !ok {
		return nil, ErrNotFound
	}

	copied := *stored
	return &copied, nil
}

// MarkCompleted finalizes a challenge as paid. Completed is reachable
// from pending and from failed, so a client can retry with a corrected
// signature after a rejection. Completed and expired are sticky.
func (l *MemoryLedger) MarkCompleted(reference, signature string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.payments[reference]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.Final() {
		return ErrAlreadyFinal
	}

	stored.Status = models.ChallengeCompleted
	stored.Signature = signature
	stored.CompletedAt = at
	stored.Error = ""
	return nil
}

// MarkFailed records a verifier rejection. The challenge stays in the
// ledger with the latest reason, and a later verification attempt may
// still complete it before it expires.
func (l *MemoryLedger) MarkFailed(reference, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.payments[reference]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.Final() {
		return ErrAlreadyFinal
	}

	stored.Status = models.ChallengeFailed
	stored.Error = reason
	return nil
}

// ExpireDue moves every overdue pending or failed challenge to expired,
// closing the retry window. Expiry is a one-way transition; nothing
// reopens an expired challenge.
func (l *MemoryLedger) ExpireDue(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	expired := 0
	for _, stored := range l.payments {
		if stored.Status.Final() {
			continue
		}
		if !stored.ExpiresAt.After(now) {
			stored.Status = models.ChallengeExpired
			expired++
		}
	}
	return expired
}

// Sweep removes challenges whose expiry is more than retention in the
// past. This is the only path that deletes entries, so terminal
// challenges stay pollable until the retention window lapses.
func (l *MemoryLedger) Sweep(now time.Time, retention time.Duration) int {
	if !l.sweepMu.TryLock() {
		// A sweep is already in progress.
		return 0
	}
	defer l.sweepMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for reference, stored := range l.payments {
		if now.Sub(stored.ExpiresAt) > retention {
			delete(l.payments, reference)
			removed++
		}
	}
	return removed
}

// Len reports the number of registered challenges.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payments)
}
