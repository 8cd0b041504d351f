package handler

import (
	"net/http"

	"openbadges/internal/badges/models"
	"openbadges/pkg/platform/httputil"
)

// BatchItemResponse reports the outcome of one entry of a batch issuance.
type BatchItemResponse struct {
	Index   int                  `json:"index"`
	Status  int                  `json:"status"`
	ID      string               `json:"id,omitempty"`
	Address string               `json:"address,omitempty"`
	Error   *httputil.StatusInfo `json:"error,omitempty"`
}

type BatchIssueResponse struct {
	Results []BatchItemResponse `json:"results"`
}

func toBatchResponse(results []models.IssueResult) BatchIssueResponse {
	resp := BatchIssueResponse{Results: make([]BatchItemResponse, 0, len(results))}
	for i, res := range results {
		item := BatchItemResponse{Index: i, Status: http.StatusCreated}
		if !res.Address.IsZero() {
			item.ID = res.Address.DID()
			item.Address = res.Address.String()
		}
		if res.Err != nil {
			status, info := httputil.NewStatusInfo(res.Err)
			item.Status = status
			item.Error = &info
		}
		resp.Results = append(resp.Results, item)
	}
	return resp
}

func toCredentialList(recs []models.CredentialRecord) []models.AchievementCredential {
	out := make([]models.AchievementCredential, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.NewAchievementCredential(rec))
	}
	return out
}
