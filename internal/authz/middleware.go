package authz

import (
	"context"
	"log/slog"
	"net/http"

	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/httputil"
	"openbadges/pkg/requestcontext"
)

type contextKeyAuthorization struct{}

var errUnauthenticated = dErrors.New(dErrors.CodeUnauthorized, "authentication required")

// FromContext returns the authorization context set by Authenticate.
func FromContext(ctx context.Context) (AuthorizationContext, bool) {
	ac, ok := ctx.Value(contextKeyAuthorization{}).(AuthorizationContext)
	return ac, ok
}

// WithAuthorization injects an authorization context. Useful for handler
// tests that skip the middleware chain.
func WithAuthorization(ctx context.Context, ac AuthorizationContext) context.Context {
	ctx = context.WithValue(ctx, contextKeyAuthorization{}, ac)
	return requestcontext.WithWallet(ctx, ac.Wallet)
}

// Authenticate verifies the Authorization header and stores the resulting
// context. Failures end the request with a 401 envelope.
func Authenticate(a *Authorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ac, err := a.VerifyToken(ctx, r.Header.Get("Authorization"))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuthorization(ctx, ac)))
		})
	}
}

// Require rejects requests whose context lacks scope with a 403 envelope.
// Requests that never went through Authenticate get a 401.
func Require(scope Scope, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ac, ok := FromContext(ctx)
			if !ok {
				httputil.WriteError(w, errUnauthenticated)
				return
			}
			if err := RequireScope(ac, scope); err != nil {
				logger.WarnContext(ctx, "forbidden - missing scope",
					"request_id", requestcontext.RequestID(ctx),
					"wallet", ac.Wallet.String(),
					"scope", scope,
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
