package handler

import (
	"context"
	"net/http"

	"openbadges/internal/badges/models"
	"openbadges/pkg/domain"
	"openbadges/pkg/platform/httputil"
	"openbadges/pkg/requestcontext"
)

// HandleCreateRevocationList handles POST /revocation-lists. The caller's
// wallet becomes the list authority.
func (h *Handler) HandleCreateRevocationList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wallet, err := h.callerWallet(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateRevocationListRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.CreateRevocationList(ctx, wallet, req.toInput())
	if err != nil {
		h.logFailure(ctx, "failed to create revocation list", err, "list_id", req.ListID)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Location", BasePath+"/revocation-lists/"+rec.Address.String())
	httputil.WriteJSON(w, http.StatusCreated, models.NewRevocationListDocument(rec))
}

func (h *Handler) HandleGetRevocationList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := pathAddress(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.GetRevocationList(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to get revocation list", err, "list", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewRevocationListDocument(rec))
}

// HandleGetStatusListCredential handles GET /revocation-lists/{address}/credential.
// Verifiers fetch it without credentials.
func (h *Handler) HandleGetStatusListCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := pathAddress(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.GetRevocationList(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to get revocation list", err, "list", addr.String())
		httputil.WriteError(w, err)
		return
	}
	vc, err := models.NewStatusListCredential(rec)
	if err != nil {
		h.logFailure(ctx, "failed to encode status list", err, "list", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vc)
}

// HandleUpdateStatus handles POST /revocation-lists/{address}/status, a batch
// of revocations and reactivations applied together.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wallet, err := h.callerWallet(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	addr, err := pathAddress(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.UpdateCredentialStatus(ctx, wallet, addr, req.toChange())
	if err != nil {
		h.logFailure(ctx, "failed to update credential status", err, "list", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewRevocationListDocument(rec))
}

// HandleRevokeCredential handles POST /credentials/{address}/revoke.
func (h *Handler) HandleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	h.handleCredentialStatus(w, r, h.service.RevokeCredential, "failed to revoke credential")
}

// HandleReactivateCredential handles POST /credentials/{address}/reactivate.
func (h *Handler) HandleReactivateCredential(w http.ResponseWriter, r *http.Request) {
	h.handleCredentialStatus(w, r, h.service.ReactivateCredential, "failed to reactivate credential")
}

type statusFunc func(ctx context.Context, authority, credential domain.Address, reason string) (models.RevocationListRecord, error)

func (h *Handler) handleCredentialStatus(w http.ResponseWriter, r *http.Request, apply statusFunc, failure string) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wallet, err := h.callerWallet(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	addr, err := pathAddress(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// the reason body is optional
	var reason string
	if r.ContentLength != 0 {
		req, ok := httputil.DecodeAndPrepare[StatusReasonRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		reason = req.Reason
	}

	if _, err := apply(ctx, wallet, addr, reason); err != nil {
		h.logFailure(ctx, failure, err, "credential", addr.String())
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.VerifyCredential(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to verify credential", err, "credential", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewVerificationDocument(res))
}

// HandleVerifyCredential handles GET /credentials/{address}/verify.
func (h *Handler) HandleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := pathAddress(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.VerifyCredential(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to verify credential", err, "credential", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewVerificationDocument(res))
}
