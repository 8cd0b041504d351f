package handler

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"openbadges/internal/badges/models"
	"openbadges/internal/badges/service"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
)

// IssueCredentialRequest is the body of POST /credentials.
type IssueCredentialRequest struct {
	Achievement       string          `json:"achievement"`
	Recipient         string          `json:"recipient"`
	CredentialSubject json.RawMessage `json:"credentialSubject,omitempty"`
	ValidFrom         *time.Time      `json:"validFrom,omitempty"`
	ValidUntil        *time.Time      `json:"validUntil,omitempty"`
	CredentialStatus  *StatusRequest  `json:"credentialStatus,omitempty"`

	parsedAchievement domain.Address
	parsedRecipient   domain.Address
	parsedStatusList  domain.Address
}

// StatusRequest reserves one bit of a revocation list for a new credential.
type StatusRequest struct {
	List  string `json:"list"`
	Index uint32 `json:"index"`
}

// Validate implements httputil.Validatable.
func (r *IssueCredentialRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	achievement, err := domain.ParseAddress(r.Achievement)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "achievement: "+messageOf(err))
	}
	recipient, err := domain.ParseAddress(r.Recipient)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "recipient: "+messageOf(err))
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom) {
		return dErrors.New(dErrors.CodeValidation, "validUntil must not precede validFrom")
	}

	if r.CredentialStatus != nil {
		list, err := domain.ParseAddress(r.CredentialStatus.List)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "credentialStatus.list: "+messageOf(err))
		}
		r.parsedStatusList = list
	}

	r.parsedAchievement = achievement
	r.parsedRecipient = recipient
	return nil
}

// toIssueRequest builds the service request for an issuer.
func (r *IssueCredentialRequest) toIssueRequest(issuer domain.Address) models.IssueRequest {
	req := models.IssueRequest{
		Achievement: r.parsedAchievement,
		Issuer:      issuer,
		Recipient:   r.parsedRecipient,
		Subject:     r.CredentialSubject,
		ValidUntil:  r.ValidUntil,
	}
	if r.ValidFrom != nil {
		req.ValidFrom = *r.ValidFrom
	}
	if r.CredentialStatus != nil {
		req.Status = &models.StatusEntry{List: r.parsedStatusList, Index: r.CredentialStatus.Index}
	}
	return req
}

// BatchIssueRequest is the body of POST /credentials/batch.
type BatchIssueRequest struct {
	Credentials []IssueCredentialRequest `json:"credentials"`
}

func (r *BatchIssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	switch n := len(r.Credentials); {
	case n == 0:
		return dErrors.New(dErrors.CodeValidation, "credentials must not be empty")
	case n > service.MaxBatchSize:
		return dErrors.New(dErrors.CodeValidation, "credentials exceeds maximum batch size")
	}
	for i := range r.Credentials {
		if err := r.Credentials[i].Validate(); err != nil {
			return dErrors.New(dErrors.CodeValidation, "credentials["+strconv.Itoa(i)+"]: "+messageOf(err))
		}
	}
	return nil
}

// UpdateProfileRequest is the body of PUT /profile.
type UpdateProfileRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Image       string `json:"image,omitempty"`
	Email       string `json:"email,omitempty"`
	Description string `json:"description,omitempty"`
}

func (r *UpdateProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func (r *UpdateProfileRequest) toProfile() models.Profile {
	return models.Profile{
		Name:        r.Name,
		URL:         r.URL,
		Image:       r.Image,
		Email:       r.Email,
		Description: r.Description,
	}
}

// CreateAchievementRequest is the body of POST /achievements.
type CreateAchievementRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Criteria    models.Criteria `json:"criteria"`
	Image       string          `json:"image,omitempty"`
}

func (r *CreateAchievementRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func (r *CreateAchievementRequest) toInput() models.AchievementInput {
	return models.AchievementInput{
		Name:        r.Name,
		Description: r.Description,
		Criteria:    r.Criteria,
		Image:       r.Image,
	}
}

// CreateRevocationListRequest is the body of POST /revocation-lists.
type CreateRevocationListRequest struct {
	ListID        string `json:"listId"`
	Capacity      uint32 `json:"capacity"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	StatusListURL string `json:"statusListUrl,omitempty"`
}

func (r *CreateRevocationListRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ListID = strings.TrimSpace(r.ListID)
	switch {
	case r.ListID == "":
		return dErrors.New(dErrors.CodeValidation, "listId is required")
	case r.Capacity == 0:
		return dErrors.New(dErrors.CodeValidation, "capacity is required")
	}
	return nil
}

func (r *CreateRevocationListRequest) toInput() models.RevocationListInput {
	return models.RevocationListInput{
		ListID:        r.ListID,
		Capacity:      r.Capacity,
		Name:          r.Name,
		Description:   r.Description,
		StatusListURL: r.StatusListURL,
	}
}

// UpdateStatusRequest is the body of POST /revocation-lists/{address}/status.
type UpdateStatusRequest struct {
	Revoke     []uint32 `json:"revoke,omitempty"`
	Reactivate []uint32 `json:"reactivate,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	switch n := len(r.Revoke) + len(r.Reactivate); {
	case n == 0:
		return dErrors.New(dErrors.CodeValidation, "revoke or reactivate must name at least one index")
	case n > service.MaxStatusChange:
		return dErrors.New(dErrors.CodeValidation, "status change exceeds maximum size")
	}
	return nil
}

func (r *UpdateStatusRequest) toChange() models.StatusChange {
	return models.StatusChange{Revoke: r.Revoke, Reactivate: r.Reactivate, Reason: r.Reason}
}

// StatusReasonRequest is the optional body of the revoke and reactivate
// credential routes.
type StatusReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (r *StatusReasonRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

func messageOf(err error) string {
	if de, ok := dErrors.As(err); ok {
		return de.Message
	}
	return err.Error()
}
