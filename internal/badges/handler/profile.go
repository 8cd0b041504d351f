package handler

import (
	"net/http"

	"openbadges/internal/badges/models"
	"openbadges/pkg/platform/httputil"
	"openbadges/pkg/requestcontext"
)

// HandleGetProfile handles GET /profile for the caller's own issuer profile.
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	wallet, err := h.callerWallet(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.GetProfile(ctx, wallet)
	if err != nil {
		h.logFailure(ctx, "failed to get profile", err, "wallet", wallet.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewProfileDocument(rec))
}

// HandleUpdateProfile handles PUT /profile.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wallet, err := h.callerWallet(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, _, err := h.service.UpdateProfile(ctx, wallet, req.toProfile())
	if err != nil {
		h.logFailure(ctx, "failed to update profile", err, "wallet", wallet.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewProfileDocument(rec))
}
