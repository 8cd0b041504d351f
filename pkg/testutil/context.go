package testutil

import (
	"net/http"
	"time"

	"openbadges/pkg/domain"
	"openbadges/pkg/requestcontext"
)

// WithWallet adds an authenticated wallet to the request context, as the
// authorization middleware would after verifying a token.
func WithWallet(req *http.Request, wallet domain.Address) *http.Request {
	return req.WithContext(requestcontext.WithWallet(req.Context(), wallet))
}

// WithClientIP sets the client metadata the metadata middleware would extract.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "testutil"))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
