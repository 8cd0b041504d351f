package handler

import (
	"net/http"

	"openbadges/internal/badges/models"
	"openbadges/pkg/platform/httputil"
	"openbadges/pkg/requestcontext"
)

// HandleCreateAchievement handles POST /achievements under the caller's
// issuer profile.
func (h *Handler) HandleCreateAchievement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wallet, err := h.callerWallet(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateAchievementRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.CreateAchievement(ctx, wallet, req.toInput())
	if err != nil {
		h.logFailure(ctx, "failed to create achievement", err, "name", req.Name)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Location", BasePath+"/achievements/"+rec.Address.String())
	httputil.WriteJSON(w, http.StatusCreated, models.NewAchievementDocument(rec))
}

func (h *Handler) HandleGetAchievement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := pathAddress(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.GetAchievement(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to get achievement", err, "achievement", addr.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewAchievementDocument(rec))
}
