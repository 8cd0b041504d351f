package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"openbadges/internal/authz"
	"openbadges/internal/badges/models"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/requestcontext"
)

// BasePath is the Open Badges 3.0 API root. Every route is also served
// without it.
const BasePath = "/ims/ob/v3p0"

// Service defines the anchoring operations the API exposes.
type Service interface {
	ResolveIssuerAddress(authority domain.Address) (domain.Address, error)
	UpsertCredential(ctx context.Context, req models.IssueRequest) (models.CredentialRecord, bool, error)
	IssueBatch(ctx context.Context, reqs []models.IssueRequest) ([]models.IssueResult, error)
	GetCredential(ctx context.Context, addr domain.Address) (models.CredentialRecord, error)
	ListCredentials(ctx context.Context, q models.ListingQuery) ([]models.CredentialRecord, int, error)
	GetProfile(ctx context.Context, authority domain.Address) (models.IssuerRecord, error)
	UpdateProfile(ctx context.Context, authority domain.Address, profile models.Profile) (models.IssuerRecord, bool, error)
	CreateAchievement(ctx context.Context, authority domain.Address, in models.AchievementInput) (models.AchievementRecord, error)
	GetAchievement(ctx context.Context, addr domain.Address) (models.AchievementRecord, error)
	CreateRevocationList(ctx context.Context, authority domain.Address, in models.RevocationListInput) (models.RevocationListRecord, error)
	GetRevocationList(ctx context.Context, addr domain.Address) (models.RevocationListRecord, error)
	UpdateCredentialStatus(ctx context.Context, authority, list domain.Address, change models.StatusChange) (models.RevocationListRecord, error)
	RevokeCredential(ctx context.Context, authority, credential domain.Address, reason string) (models.RevocationListRecord, error)
	ReactivateCredential(ctx context.Context, authority, credential domain.Address, reason string) (models.RevocationListRecord, error)
	VerifyCredential(ctx context.Context, addr domain.Address) (models.VerificationResult, error)
}

// Handler serves the Open Badges REST surface.
type Handler struct {
	service    Service
	authorizer *authz.Authorizer
	discovery  DiscoveryConfig
	logger     *slog.Logger
}

func New(service Service, authorizer *authz.Authorizer, discovery DiscoveryConfig, logger *slog.Logger) *Handler {
	return &Handler{
		service:    service,
		authorizer: authorizer,
		discovery:  discovery,
		logger:     logger,
	}
}

// Register mounts the API under BasePath and at the root.
func (h *Handler) Register(r chi.Router) {
	r.Route(BasePath, h.routes)
	r.Group(h.routes)
}

func (h *Handler) routes(r chi.Router) {
	r.Get("/discovery", h.HandleDiscovery)
	r.Get("/revocation-lists/{address}/credential", h.HandleGetStatusListCredential)

	r.Group(func(r chi.Router) {
		r.Use(authz.Authenticate(h.authorizer, h.logger))

		readCredentials := authz.Require(authz.ScopeCredentialReadonly, h.logger)
		upsertCredentials := authz.Require(authz.ScopeCredentialUpsert, h.logger)

		r.With(readCredentials).Get("/credentials", h.HandleListCredentials)
		r.With(readCredentials).Get("/credentials/{address}", h.HandleGetCredential)
		r.With(upsertCredentials).Post("/credentials", h.HandleUpsertCredential)
		r.With(upsertCredentials).Post("/credentials/batch", h.HandleIssueBatch)
		r.With(upsertCredentials).Post("/credentials/{address}/revoke", h.HandleRevokeCredential)
		r.With(upsertCredentials).Post("/credentials/{address}/reactivate", h.HandleReactivateCredential)
		r.With(readCredentials).Get("/credentials/{address}/verify", h.HandleVerifyCredential)

		r.With(upsertCredentials).Post("/revocation-lists", h.HandleCreateRevocationList)
		r.With(readCredentials).Get("/revocation-lists/{address}", h.HandleGetRevocationList)
		r.With(upsertCredentials).Post("/revocation-lists/{address}/status", h.HandleUpdateStatus)

		r.With(upsertCredentials).Post("/achievements", h.HandleCreateAchievement)
		r.With(readCredentials).Get("/achievements/{address}", h.HandleGetAchievement)

		r.With(authz.Require(authz.ScopeProfileReadonly, h.logger)).Get("/profile", h.HandleGetProfile)
		r.With(authz.Require(authz.ScopeProfileUpdate, h.logger)).Put("/profile", h.HandleUpdateProfile)
	})
}

// callerWallet returns the authenticated wallet. The auth middleware always
// sets it, so a zero value means the route was mounted without it.
func (h *Handler) callerWallet(ctx context.Context) (domain.Address, error) {
	wallet := requestcontext.Wallet(ctx)
	if wallet.IsZero() {
		h.logger.ErrorContext(ctx, "wallet missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		return domain.Address{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return wallet, nil
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}

func pathAddress(r *http.Request) (domain.Address, error) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return domain.Address{}, dErrors.New(dErrors.CodeBadRequest, "invalid address in path")
	}
	return addr, nil
}
