package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/mock/gomock"

	"openbadges/internal/authz"
	"openbadges/internal/badges/models"
	dErrors "openbadges/pkg/domain-errors"
)

func (s *HandlerSuite) sampleList() models.RevocationListRecord {
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return models.RevocationListRecord{
		Address:     testAddress("list"),
		Authority:   s.wallet,
		Issuer:      testAddress("issuer"),
		ListID:      "spring",
		Capacity:    16,
		Name:        "Spring cohort",
		Description: "Revocations for the spring cohort",
		Bits:        models.NewStatusBits(16),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func (s *HandlerSuite) TestCreateRevocationList() {
	list := s.sampleList()

	s.Run("caller becomes the authority", func() {
		s.mockService.EXPECT().CreateRevocationList(gomock.Any(), s.wallet, models.RevocationListInput{
			ListID: "spring", Capacity: 16, Name: "Spring cohort", Description: "Revocations for the spring cohort",
		}).Return(list, nil)

		w := s.do(http.MethodPost, BasePath+"/revocation-lists", s.token(authz.ScopeCredentialUpsert), map[string]any{
			"listId": " spring ", "capacity": 16, "name": "Spring cohort", "description": "Revocations for the spring cohort",
		})
		s.Equal(http.StatusCreated, w.Code)
		s.Equal(BasePath+"/revocation-lists/"+list.Address.String(), w.Header().Get("Location"))

		var doc models.RevocationListDocument
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &doc))
		s.Equal(list.Address.DID(), doc.ID)
	})

	s.Run("missing capacity never reaches the service", func() {
		w := s.do(http.MethodPost, "/revocation-lists", s.token(authz.ScopeCredentialUpsert), map[string]any{
			"listId": "spring", "name": "n", "description": "d",
		})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("readonly scope cannot create", func() {
		w := s.do(http.MethodPost, "/revocation-lists", s.token(authz.ScopeCredentialReadonly), map[string]any{
			"listId": "spring", "capacity": 16,
		})
		s.Equal(http.StatusForbidden, w.Code)
	})
}

func (s *HandlerSuite) TestStatusListCredentialIsPublic() {
	list, err := s.sampleList().Apply(models.StatusChange{Revoke: []uint32{3}})
	s.Require().NoError(err)
	s.mockService.EXPECT().GetRevocationList(gomock.Any(), list.Address).Return(list, nil)

	w := s.do(http.MethodGet, "/revocation-lists/"+list.Address.String()+"/credential", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var vc models.StatusListCredential
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &vc))
	bits, err := models.DecodeStatusList(vc.CredentialSubject.EncodedList)
	s.Require().NoError(err)
	s.Equal(list.Bits, bits)
}

func (s *HandlerSuite) TestUpdateStatus() {
	list := s.sampleList()
	path := "/revocation-lists/" + list.Address.String() + "/status"

	s.Run("applies the batch as the caller", func() {
		s.mockService.EXPECT().UpdateCredentialStatus(gomock.Any(), s.wallet, list.Address, models.StatusChange{
			Revoke: []uint32{1, 2}, Reactivate: []uint32{5}, Reason: "cohort withdrawn",
		}).Return(list, nil)

		w := s.do(http.MethodPost, path, s.token(authz.ScopeCredentialUpsert), map[string]any{
			"revoke": []int{1, 2}, "reactivate": []int{5}, "reason": "cohort withdrawn",
		})
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("empty change is rejected", func() {
		w := s.do(http.MethodPost, path, s.token(authz.ScopeCredentialUpsert), map[string]any{})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("another authority is forbidden", func() {
		s.mockService.EXPECT().UpdateCredentialStatus(gomock.Any(), s.wallet, list.Address, gomock.Any()).
			Return(models.RevocationListRecord{}, dErrors.New(dErrors.CodeForbidden, "only the list authority may change credential status"))

		w := s.do(http.MethodPost, path, s.token(authz.ScopeCredentialUpsert), map[string]any{"revoke": []int{1}})
		s.Equal(http.StatusForbidden, w.Code)
	})
}

func (s *HandlerSuite) TestRevokeCredential() {
	cred := s.sampleCredential()
	res := models.VerificationResult{Credential: cred.Address, AddressVerified: true, IssuerMatches: true, StatusChecked: true, Revoked: true}

	s.Run("body is optional", func() {
		s.mockService.EXPECT().RevokeCredential(gomock.Any(), s.wallet, cred.Address, "").Return(s.sampleList(), nil)
		s.mockService.EXPECT().VerifyCredential(gomock.Any(), cred.Address).Return(res, nil)

		w := s.do(http.MethodPost, "/credentials/"+cred.Address.String()+"/revoke", s.token(authz.ScopeCredentialUpsert), nil)
		s.Require().Equal(http.StatusOK, w.Code)

		var doc models.VerificationDocument
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &doc))
		s.False(doc.Valid)
	})

	s.Run("reason is forwarded on reactivation", func() {
		res.Revoked = false
		s.mockService.EXPECT().ReactivateCredential(gomock.Any(), s.wallet, cred.Address, "appeal upheld").Return(s.sampleList(), nil)
		s.mockService.EXPECT().VerifyCredential(gomock.Any(), cred.Address).Return(res, nil)

		w := s.do(http.MethodPost, BasePath+"/credentials/"+cred.Address.String()+"/reactivate",
			s.token(authz.ScopeCredentialUpsert), map[string]any{"reason": " appeal upheld "})
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("credential without status is a conflict", func() {
		s.mockService.EXPECT().RevokeCredential(gomock.Any(), s.wallet, cred.Address, "").
			Return(models.RevocationListRecord{}, dErrors.New(dErrors.CodeConflict, "credential was issued without a status entry"))

		w := s.do(http.MethodPost, "/credentials/"+cred.Address.String()+"/revoke", s.token(authz.ScopeCredentialUpsert), nil)
		s.Equal(http.StatusConflict, w.Code)
	})
}

func (s *HandlerSuite) TestVerifyCredential() {
	cred := s.sampleCredential()
	s.mockService.EXPECT().VerifyCredential(gomock.Any(), cred.Address).Return(models.VerificationResult{
		Credential: cred.Address, AddressVerified: true, IssuerMatches: true,
	}, nil)

	w := s.do(http.MethodGet, "/credentials/"+cred.Address.String()+"/verify", s.token(authz.ScopeCredentialReadonly), nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var doc models.VerificationDocument
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &doc))
	s.True(doc.Valid)
	s.Len(doc.Checks, 4)

	w = s.do(http.MethodGet, "/credentials/not-an-address/verify", s.token(authz.ScopeCredentialReadonly), nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestUpsertCredentialWithStatus() {
	issuer := testAddress("issuer")
	list := testAddress("list")
	rec := s.sampleCredential()

	s.mockService.EXPECT().ResolveIssuerAddress(s.wallet).Return(issuer, nil)
	s.mockService.EXPECT().UpsertCredential(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req models.IssueRequest) (models.CredentialRecord, bool, error) {
			s.Require().NotNil(req.Status)
			s.Equal(list, req.Status.List)
			s.Equal(uint32(9), req.Status.Index)
			return rec, true, nil
		})

	w := s.do(http.MethodPost, "/credentials", s.token(authz.ScopeCredentialUpsert), map[string]any{
		"achievement":      rec.Achievement.String(),
		"recipient":        rec.Recipient.String(),
		"credentialStatus": map[string]any{"list": list.String(), "index": 9},
	})
	s.Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/credentials", s.token(authz.ScopeCredentialUpsert), map[string]any{
		"achievement":      rec.Achievement.String(),
		"recipient":        rec.Recipient.String(),
		"credentialStatus": map[string]any{"list": "nope", "index": 9},
	})
	s.Equal(http.StatusBadRequest, w.Code)
}
