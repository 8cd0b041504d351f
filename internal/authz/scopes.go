package authz

import (
	"slices"
	"strings"
)

// ScopePrefix is the URI namespace of every Open Badges 3.0 scope.
const ScopePrefix = "https://purl.imsglobal.org/spec/ob/v3p0/scope/"

// Scope is a recognised Open Badges 3.0 permission. The set is closed:
// strings outside it never become a Scope.
type Scope string

const (
	ScopeCredentialReadonly Scope = ScopePrefix + "credential.readonly"
	ScopeCredentialUpsert   Scope = ScopePrefix + "credential.upsert"
	ScopeProfileReadonly    Scope = ScopePrefix + "profile.readonly"
	ScopeProfileUpdate      Scope = ScopePrefix + "profile.update"
)

var knownScopes = []Scope{
	ScopeCredentialReadonly,
	ScopeCredentialUpsert,
	ScopeProfileReadonly,
	ScopeProfileUpdate,
}

// AllScopes returns every recognised scope, in a stable order.
func AllScopes() []Scope {
	return slices.Clone(knownScopes)
}

func (s Scope) String() string { return string(s) }

func (s Scope) IsValid() bool {
	return slices.Contains(knownScopes, s)
}

// ScopeSet is the set of scopes granted to a request.
type ScopeSet map[Scope]struct{}

// ParseScopes reads a space-delimited scope claim. Unknown entries are
// dropped, so a token can never carry a scope the service does not define.
func ParseScopes(claim string) ScopeSet {
	set := make(ScopeSet)
	for _, raw := range strings.Fields(claim) {
		if s := Scope(raw); s.IsValid() {
			set[s] = struct{}{}
		}
	}
	return set
}

func NewScopeSet(scopes ...Scope) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		if s.IsValid() {
			set[s] = struct{}{}
		}
	}
	return set
}

func (s ScopeSet) Has(scope Scope) bool {
	_, ok := s[scope]
	return ok
}

// Slice returns the scopes in canonical order.
func (s ScopeSet) Slice() []Scope {
	out := make([]Scope, 0, len(s))
	for _, known := range knownScopes {
		if s.Has(known) {
			out = append(out, known)
		}
	}
	return out
}

// Claim renders the set as a space-delimited scope claim.
func (s ScopeSet) Claim() string {
	parts := make([]string, 0, len(s))
	for _, scope := range s.Slice() {
		parts = append(parts, string(scope))
	}
	return strings.Join(parts, " ")
}
