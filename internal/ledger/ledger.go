// Package ledger is the client boundary to the ledger that owns issuer,
// achievement and credential accounts. The ledger is the source of truth:
// adapters keep no cache, and every read is a fresh query.
//
// The only concurrency guarantee callers rely on is CreateIfAbsent: exactly one
// of any number of concurrent creations at the same address succeeds, the rest
// get sentinel.ErrAlreadyExists. Adapters implement it with the atomic
// primitive of their backend and never with an in-process lock shared across
// instances.
package ledger

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"openbadges/pkg/domain"
)

// Kind is the account type stored at an address.
type Kind string

const (
	KindIssuer      Kind = "issuer"
	KindAchievement Kind = "achievement"
	KindCredential  Kind = "credential"
	// KindRevocationList holds a status bitfield that credentials point into.
	KindRevocationList Kind = "revocation_list"
)

// Account is the ledger-native record. Issuer, Achievement and Recipient are
// indexed so listings can be filtered without decoding Data.
type Account struct {
	Address     domain.Address  `json:"address"`
	Kind        Kind            `json:"kind"`
	Nonce       byte            `json:"nonce"`
	Issuer      domain.Address  `json:"issuer,omitzero"`
	Achievement domain.Address  `json:"achievement,omitzero"`
	Recipient   domain.Address  `json:"recipient,omitzero"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Filter selects accounts for List. Zero-valued fields do not filter.
// Results are ordered by CreatedAt, then by address.
type Filter struct {
	Kind        Kind
	Issuer      domain.Address
	Achievement domain.Address
	Recipient   domain.Address
	Since       time.Time
	Offset      int
	Limit       int // 0 means no limit
}

// Ledger is the set of operations the anchoring service needs.
type Ledger interface {
	// CreateIfAbsent atomically writes acct unless its address is occupied,
	// in which case it returns sentinel.ErrAlreadyExists.
	CreateIfAbsent(ctx context.Context, acct Account) error
	// Read returns the account at addr or sentinel.ErrNotFound.
	Read(ctx context.Context, addr domain.Address) (Account, error)
	// Replace overwrites Data and UpdatedAt of an existing account, or
	// returns sentinel.ErrNotFound.
	Replace(ctx context.Context, acct Account) error
	// CompareAndReplace is Replace guarded by the current Data: it returns
	// sentinel.ErrConflict when the stored Data no longer equals expected.
	CompareAndReplace(ctx context.Context, acct Account, expected json.RawMessage) error
	// List returns one page of matching accounts and the total match count.
	List(ctx context.Context, f Filter) ([]Account, int, error)
}

// Matches reports whether acct satisfies every set field of f.
func (f Filter) Matches(acct Account) bool {
	if f.Kind != "" && acct.Kind != f.Kind {
		return false
	}
	if !f.Issuer.IsZero() && acct.Issuer != f.Issuer {
		return false
	}
	if !f.Achievement.IsZero() && acct.Achievement != f.Achievement {
		return false
	}
	if !f.Recipient.IsZero() && acct.Recipient != f.Recipient {
		return false
	}
	if !f.Since.IsZero() && acct.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// Page applies offset and limit to an already ordered slice.
func (f Filter) Page(accts []Account) []Account {
	if f.Offset >= len(accts) {
		return []Account{}
	}
	accts = accts[max(f.Offset, 0):]
	if f.Limit > 0 && len(accts) > f.Limit {
		accts = accts[:f.Limit]
	}
	return accts
}

func sortAccounts(accts []Account) {
	slices.SortFunc(accts, func(a, b Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Address.String(), b.Address.String())
	})
}
