package handler

import (
	"net/http"

	"openbadges/internal/badges/models"
	"openbadges/pkg/platform/httputil"
	"openbadges/pkg/requestcontext"
)

// HandleListCredentials handles GET /credentials.
func (h *Handler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := parseListingQuery(r.URL.Query())
	if err != nil {
		h.logFailure(ctx, "invalid listing query", err, "query", r.URL.RawQuery)
		httputil.WriteError(w, err)
		return
	}

	recs, total, err := h.service.ListCredentials(ctx, q)
	if err != nil {
		h.logFailure(ctx, "failed to list credentials", err)
		httputil.WriteError(w, err)
		return
	}

	writePaginationHeaders(w, r, q, total)
	httputil.WriteJSON(w, http.StatusOK, toCredentialList(recs))
}

// HandleGetCredential handles GET /credentials/{address}.
func (h *Handler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := pathAddress(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.GetCredential(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to get credential", err, "credential", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewAchievementCredential(rec))
}

// HandleUpsertCredential handles POST /credentials. The caller's wallet is
// the issuing authority. A new credential is 201, an identical resubmission
// is 200 and anything else at the same address is 409.
func (h *Handler) HandleUpsertCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wallet, err := h.callerWallet(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[IssueCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	issuer, err := h.service.ResolveIssuerAddress(wallet)
	if err != nil {
		h.logFailure(ctx, "failed to resolve issuer", err, "wallet", wallet.String())
		httputil.WriteError(w, err)
		return
	}

	rec, created, err := h.service.UpsertCredential(ctx, req.toIssueRequest(issuer))
	if err != nil {
		h.logFailure(ctx, "failed to issue credential", err,
			"achievement", req.Achievement,
			"recipient", req.Recipient,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", BasePath+"/credentials/"+rec.Address.String())
	}
	httputil.WriteJSON(w, status, models.NewAchievementCredential(rec))
}

// HandleIssueBatch handles POST /credentials/batch. The response is 200 as
// long as the batch itself is well formed; each item carries its own status.
func (h *Handler) HandleIssueBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wallet, err := h.callerWallet(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[BatchIssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	issuer, err := h.service.ResolveIssuerAddress(wallet)
	if err != nil {
		h.logFailure(ctx, "failed to resolve issuer", err, "wallet", wallet.String())
		httputil.WriteError(w, err)
		return
	}

	reqs := make([]models.IssueRequest, 0, len(req.Credentials))
	for i := range req.Credentials {
		reqs = append(reqs, req.Credentials[i].toIssueRequest(issuer))
	}
	results, err := h.service.IssueBatch(ctx, reqs)
	if err != nil {
		h.logFailure(ctx, "failed to issue batch", err, "size", len(reqs))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBatchResponse(results))
}
