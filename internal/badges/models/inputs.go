package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"openbadges/pkg/domain"
)

// ErrWrongKind means an address holds an account of a different type than
// the caller asked for.
var ErrWrongKind = errors.New("account kind mismatch")

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type AchievementInput struct {
	Name        string
	Description string
	Criteria    Criteria
	Image       string
}

// IssueRequest names the triple that determines a credential address plus the
// opaque claim anchored with it.
type IssueRequest struct {
	Achievement domain.Address
	Issuer      domain.Address
	Recipient   domain.Address
	Subject     json.RawMessage
	ValidFrom   time.Time
	ValidUntil  *time.Time
	// Status optionally reserves a bit of one of the issuer's revocation
	// lists; only List and Index are read.
	Status *StatusEntry
}

// IssueResult is one entry of a batch issuance.
type IssueResult struct {
	Address domain.Address
	Err     error
}

// ListingQuery filters and pages credential listings. Zero addresses and a
// zero Since do not filter.
type ListingQuery struct {
	Issuer      domain.Address
	Achievement domain.Address
	Recipient   domain.Address
	Since       time.Time
	Offset      int
	Limit       int
}

// SameClaim reports whether two JSON claims are semantically equal,
// ignoring key order and whitespace.
func SameClaim(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
