package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"sync"

	"openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

// InMemoryLedger is a process-local ledger for tests and demo mode. The mutex
// gives it the same create-if-absent atomicity a real ledger provides.
type InMemoryLedger struct {
	mu       sync.RWMutex
	accounts map[domain.Address]Account
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{accounts: make(map[domain.Address]Account)}
}

func (l *InMemoryLedger) CreateIfAbsent(_ context.Context, acct Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[acct.Address]; ok {
		return sentinel.ErrAlreadyExists
	}
	acct.Data = slices.Clone(acct.Data)
	l.accounts[acct.Address] = acct
	return nil
}

func (l *InMemoryLedger) Read(_ context.Context, addr domain.Address) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[addr]
	if !ok {
		return Account{}, sentinel.ErrNotFound
	}
	acct.Data = slices.Clone(acct.Data)
	return acct, nil
}

func (l *InMemoryLedger) Replace(_ context.Context, acct Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.accounts[acct.Address]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Data = slices.Clone(acct.Data)
	existing.UpdatedAt = acct.UpdatedAt
	l.accounts[acct.Address] = existing
	return nil
}

func (l *InMemoryLedger) CompareAndReplace(_ context.Context, acct Account, expected json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.accounts[acct.Address]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !bytes.Equal(existing.Data, expected) {
		return sentinel.ErrConflict
	}
	existing.Data = slices.Clone(acct.Data)
	existing.UpdatedAt = acct.UpdatedAt
	l.accounts[acct.Address] = existing
	return nil
}

func (l *InMemoryLedger) List(_ context.Context, f Filter) ([]Account, int, error) {
	l.mu.RLock()
	matched := make([]Account, 0)
	for _, acct := range l.accounts {
		if f.Matches(acct) {
			acct.Data = slices.Clone(acct.Data)
			matched = append(matched, acct)
		}
	}
	l.mu.RUnlock()

	sortAccounts(matched)
	return f.Page(matched), len(matched), nil
}
