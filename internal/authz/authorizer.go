// Package authz turns bearer tokens into an authorization context and checks
// Open Badges scopes against it. Nothing here is persisted; the context lives
// only as long as the request.
package authz

import (
	"context"
	"strings"

	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
)

// AuthorizationContext is the verified identity of one request.
type AuthorizationContext struct {
	Subject string
	Wallet  domain.Address
	Scopes  ScopeSet
}

type Authorizer struct {
	verifier TokenVerifier
}

func NewAuthorizer(verifier TokenVerifier) *Authorizer {
	return &Authorizer{verifier: verifier}
}

// VerifyToken validates a raw token (with or without a case-insensitive
// "Bearer" scheme) and builds the authorization context.
func (a *Authorizer) VerifyToken(ctx context.Context, bearer string) (AuthorizationContext, error) {
	token := strings.TrimSpace(bearer)
	if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, "Bearer") {
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return AuthorizationContext{}, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}

	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return AuthorizationContext{}, err
		}
		return AuthorizationContext{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if claims == nil {
		return AuthorizationContext{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	wallet, err := domain.ParseAddress(claims.Wallet)
	if err != nil {
		return AuthorizationContext{}, dErrors.New(dErrors.CodeUnauthorized, "token wallet is not a valid address")
	}

	return AuthorizationContext{
		Subject: claims.Subject,
		Wallet:  wallet,
		Scopes:  ParseScopes(claims.Scope),
	}, nil
}

// RequireScope fails with a forbidden error unless ac holds scope exactly.
func RequireScope(ac AuthorizationContext, scope Scope) error {
	if !ac.Scopes.Has(scope) {
		return dErrors.New(dErrors.CodeForbidden, "missing required scope "+scope.String())
	}
	return nil
}
