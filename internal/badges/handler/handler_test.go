package handler

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"openbadges/internal/authz"
	"openbadges/internal/badges/handler/mocks"
	"openbadges/internal/badges/models"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type HandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockService *mocks.MockService
	verifier    *authz.JWTVerifier
	router      chi.Router
	wallet      domain.Address
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func testAddress(label string) domain.Address {
	return domain.Address(sha256.Sum256([]byte(label)))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	s.verifier = authz.NewJWTVerifier("test-signing-key", "openbadges", "openbadges-api")
	s.wallet = testAddress("A1")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.mockService, authz.NewAuthorizer(s.verifier), DiscoveryConfig{
		Title:            "Open Badges API",
		Version:          "1.0",
		ServerURL:        "https://badges.example.edu",
		AuthorizationURL: "https://auth.example.edu/authorize",
		TokenURL:         "https://auth.example.edu/token",
	}, logger)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) token(scopes ...authz.Scope) string {
	tok, err := s.verifier.GenerateToken(s.wallet, authz.NewScopeSet(scopes...), time.Minute)
	s.Require().NoError(err)
	return tok
}

func (s *HandlerSuite) do(method, target, token string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, target, body)
	return testutil.DoRequest(s.router, testutil.WithBearer(req, token))
}

func (s *HandlerSuite) codeMinor(w *httptest.ResponseRecorder) string {
	return testutil.CodeMinor(s.T(), w.Body.Bytes())
}

func (s *HandlerSuite) sampleCredential() models.CredentialRecord {
	return models.CredentialRecord{
		Address:         testAddress("credential"),
		Achievement:     testAddress("achievement"),
		Issuer:          testAddress("issuer"),
		Recipient:       testAddress("R1"),
		AchievementName: "Intro Course",
		IssuedAt:        time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		ValidFrom:       time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		Subject:         json.RawMessage(`{}`),
	}
}

func (s *HandlerSuite) TestDiscoveryIsPublic() {
	for _, path := range []string{"/discovery", BasePath + "/discovery"} {
		w := s.do(http.MethodGet, path, "", nil)
		s.Equal(http.StatusOK, w.Code, path)

		var doc ServiceDescription
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &doc))
		flow := doc.Components.SecuritySchemes[securitySchemeName].Flows.AuthorizationCode
		s.Len(flow.Scopes, 4)
		s.Contains(flow.Scopes, authz.ScopeCredentialUpsert.String())
		s.Equal("https://badges.example.edu"+BasePath, doc.Servers[0].URL)
	}
}

func (s *HandlerSuite) TestScopeEnforcement() {
	s.Run("missing token is 401", func() {
		w := s.do(http.MethodGet, "/credentials", "", nil)
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Equal("unauthorizedrequest", s.codeMinor(w))
	})

	s.Run("malformed token is 401", func() {
		w := s.do(http.MethodGet, "/credentials", "not-a-jwt", nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("profile scope cannot list credentials", func() {
		w := s.do(http.MethodGet, "/credentials", s.token(authz.ScopeProfileReadonly), nil)
		s.Equal(http.StatusForbidden, w.Code)
		s.Equal("forbidden", s.codeMinor(w))
	})

	s.Run("readonly scope cannot upsert", func() {
		body := map[string]any{"achievement": testAddress("x").String(), "recipient": testAddress("y").String()}
		w := s.do(http.MethodPost, "/credentials", s.token(authz.ScopeCredentialReadonly), body)
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("readonly scope lists credentials", func() {
		s.mockService.EXPECT().ListCredentials(gomock.Any(), gomock.Any()).Return(nil, 0, nil)
		w := s.do(http.MethodGet, BasePath+"/credentials", s.token(authz.ScopeCredentialReadonly), nil)
		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`[]`, w.Body.String())
	})
}

func (s *HandlerSuite) TestListCredentialsPagination() {
	recipient := testAddress("R1")
	s.mockService.EXPECT().ListCredentials(gomock.Any(), models.ListingQuery{
		Recipient: recipient,
		Offset:    10,
		Limit:     10,
	}).Return([]models.CredentialRecord{s.sampleCredential()}, 35, nil)

	target := "/credentials?limit=10&offset=10&recipient=" + recipient.String()
	w := s.do(http.MethodGet, target, s.token(authz.ScopeCredentialReadonly), nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	s.Equal("35", w.Header().Get("X-Total-Count"))
	link := w.Header().Get("Link")
	s.Contains(link, `offset=0`)
	s.Contains(link, `rel="first"`)
	s.Contains(link, `offset=30`)
	s.Contains(link, `rel="last"`)
	s.Contains(link, `offset=20`)
	s.Contains(link, `rel="next"`)
	s.Contains(link, `rel="prev"`)
	s.Contains(link, "recipient="+recipient.String())

	var creds []map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &creds))
	s.Require().Len(creds, 1)
	s.Equal(testAddress("credential").DID(), creds[0]["id"])
}

func (s *HandlerSuite) TestListCredentialsLastPageHasNoNext() {
	s.mockService.EXPECT().ListCredentials(gomock.Any(), gomock.Any()).Return(nil, 3, nil)

	w := s.do(http.MethodGet, "/credentials", s.token(authz.ScopeCredentialReadonly), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("3", w.Header().Get("X-Total-Count"))
	link := w.Header().Get("Link")
	s.NotContains(link, `rel="next"`)
	s.NotContains(link, `rel="prev"`)
}

func (s *HandlerSuite) TestListCredentialsPastTheEnd() {
	s.mockService.EXPECT().ListCredentials(gomock.Any(), gomock.Any()).Return(nil, 5, nil)

	w := s.do(http.MethodGet, "/credentials?limit=2&offset=40", s.token(authz.ScopeCredentialReadonly), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	link := w.Header().Get("Link")
	s.NotContains(link, `rel="next"`)
	s.Contains(link, `offset=4>; rel="prev"`)
	s.Contains(link, `offset=4>; rel="last"`)
}

func (s *HandlerSuite) TestListCredentialsRejectsBadQuery() {
	tok := s.token(authz.ScopeCredentialReadonly)
	for _, q := range []string{
		"limit=0",
		"limit=101",
		"limit=ten",
		"offset=-1",
		"offset=9223372036854775807",
		"since=yesterday",
		"recipient=0OIl",
		"issuer=abc",
	} {
		w := s.do(http.MethodGet, "/credentials?"+q, tok, nil)
		s.Equal(http.StatusBadRequest, w.Code, q)
		s.Equal("invalid_query_parameter", s.codeMinor(w), q)
	}
}

func (s *HandlerSuite) TestUpsertCredential() {
	issuer := testAddress("issuer")
	rec := s.sampleCredential()
	body := map[string]any{
		"achievement":       rec.Achievement.String(),
		"recipient":         rec.Recipient.String(),
		"credentialSubject": map[string]any{"grade": "A"},
	}

	s.Run("new credential is 201 with location", func() {
		s.mockService.EXPECT().ResolveIssuerAddress(s.wallet).Return(issuer, nil)
		s.mockService.EXPECT().UpsertCredential(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req models.IssueRequest) (models.CredentialRecord, bool, error) {
				s.Equal(issuer, req.Issuer)
				s.Equal(rec.Recipient, req.Recipient)
				s.JSONEq(`{"grade":"A"}`, string(req.Subject))
				return rec, true, nil
			})

		w := s.do(http.MethodPost, "/credentials", s.token(authz.ScopeCredentialUpsert), body)
		s.Equal(http.StatusCreated, w.Code, w.Body.String())
		s.Equal(BasePath+"/credentials/"+rec.Address.String(), w.Header().Get("Location"))
	})

	s.Run("identical resubmission is 200", func() {
		s.mockService.EXPECT().ResolveIssuerAddress(s.wallet).Return(issuer, nil)
		s.mockService.EXPECT().UpsertCredential(gomock.Any(), gomock.Any()).Return(rec, false, nil)

		w := s.do(http.MethodPost, "/credentials", s.token(authz.ScopeCredentialUpsert), body)
		s.Equal(http.StatusOK, w.Code)
		s.Empty(w.Header().Get("Location"))
	})

	s.Run("conflicting resubmission is 409", func() {
		s.mockService.EXPECT().ResolveIssuerAddress(s.wallet).Return(issuer, nil)
		s.mockService.EXPECT().UpsertCredential(gomock.Any(), gomock.Any()).Return(
			models.CredentialRecord{}, false,
			dErrors.New(dErrors.CodeDuplicateIssuance, "credential "+rec.Address.String()+" already issued with a different subject"))

		w := s.do(http.MethodPost, "/credentials", s.token(authz.ScopeCredentialUpsert), body)
		s.Equal(http.StatusConflict, w.Code)
		s.Contains(w.Body.String(), rec.Address.String())
	})

	s.Run("ledger outage is 503 with retry-after", func() {
		s.mockService.EXPECT().ResolveIssuerAddress(s.wallet).Return(issuer, nil)
		s.mockService.EXPECT().UpsertCredential(gomock.Any(), gomock.Any()).Return(
			models.CredentialRecord{}, false, dErrors.New(dErrors.CodeChainUnavailable, "ledger unavailable"))

		w := s.do(http.MethodPost, "/credentials", s.token(authz.ScopeCredentialUpsert), body)
		s.Equal(http.StatusServiceUnavailable, w.Code)
		s.Equal("1", w.Header().Get("Retry-After"))
		s.Equal("server_busy", s.codeMinor(w))
	})

	s.Run("invalid recipient is 400 before the service is called", func() {
		bad := map[string]any{"achievement": rec.Achievement.String(), "recipient": "not base58 0OIl"}
		w := s.do(http.MethodPost, "/credentials", s.token(authz.ScopeCredentialUpsert), bad)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("invalid_data", s.codeMinor(w))
	})

	s.Run("unknown fields are rejected", func() {
		bad := map[string]any{"achievement": rec.Achievement.String(), "recipient": rec.Recipient.String(), "extra": 1}
		w := s.do(http.MethodPost, "/credentials", s.token(authz.ScopeCredentialUpsert), bad)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestIssueBatch() {
	issuer := testAddress("issuer")
	first := testAddress("first")
	second := testAddress("second")
	item := map[string]any{"achievement": testAddress("achievement").String(), "recipient": testAddress("R1").String()}

	s.Run("reports each item", func() {
		s.mockService.EXPECT().ResolveIssuerAddress(s.wallet).Return(issuer, nil)
		s.mockService.EXPECT().IssueBatch(gomock.Any(), gomock.Len(2)).Return([]models.IssueResult{
			{Address: first},
			{Address: second, Err: dErrors.New(dErrors.CodeDuplicateIssuance, "credential already issued")},
		}, nil)

		w := s.do(http.MethodPost, "/credentials/batch", s.token(authz.ScopeCredentialUpsert),
			map[string]any{"credentials": []any{item, item}})
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

		var resp BatchIssueResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Require().Len(resp.Results, 2)
		s.Equal(http.StatusCreated, resp.Results[0].Status)
		s.Equal(first.DID(), resp.Results[0].ID)
		s.Nil(resp.Results[0].Error)
		s.Equal(http.StatusConflict, resp.Results[1].Status)
		s.Require().NotNil(resp.Results[1].Error)
		s.Equal(second.String(), resp.Results[1].Address)
	})

	s.Run("oversized batch is rejected", func() {
		items := make([]any, 11)
		for i := range items {
			items[i] = item
		}
		w := s.do(http.MethodPost, "/credentials/batch", s.token(authz.ScopeCredentialUpsert),
			map[string]any{"credentials": items})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestProfile() {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	rec := models.IssuerRecord{
		Address:   testAddress("issuer"),
		Authority: s.wallet,
		Profile:   models.Profile{Name: "Example University"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.Run("get returns the caller's profile", func() {
		s.mockService.EXPECT().GetProfile(gomock.Any(), s.wallet).Return(rec, nil)

		w := s.do(http.MethodGet, "/profile", s.token(authz.ScopeProfileReadonly), nil)
		s.Require().Equal(http.StatusOK, w.Code)
		var doc models.ProfileDocument
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &doc))
		s.Equal(s.wallet.DID(), doc.ID)
		s.Equal("Example University", doc.Name)
	})

	s.Run("get of an unanchored profile is 404", func() {
		s.mockService.EXPECT().GetProfile(gomock.Any(), s.wallet).Return(models.IssuerRecord{}, dErrors.New(dErrors.CodeNotFound, "profile not found"))

		w := s.do(http.MethodGet, "/profile", s.token(authz.ScopeProfileReadonly), nil)
		s.Equal(http.StatusNotFound, w.Code)
		s.Equal("not_found", s.codeMinor(w))
	})

	s.Run("put needs the update scope", func() {
		w := s.do(http.MethodPut, "/profile", s.token(authz.ScopeProfileReadonly), map[string]any{"name": "x"})
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("put replaces metadata", func() {
		s.mockService.EXPECT().UpdateProfile(gomock.Any(), s.wallet, models.Profile{Name: "Renamed", URL: "https://example.edu"}).
			Return(rec, false, nil)

		w := s.do(http.MethodPut, BasePath+"/profile", s.token(authz.ScopeProfileUpdate),
			map[string]any{"name": "  Renamed ", "url": "https://example.edu"})
		s.Equal(http.StatusOK, w.Code, w.Body.String())
	})
}

func (s *HandlerSuite) TestAchievements() {
	rec := models.AchievementRecord{
		Address:   testAddress("achievement"),
		Issuer:    testAddress("issuer"),
		Name:      "Intro Course",
		CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	s.Run("create is 201", func() {
		s.mockService.EXPECT().CreateAchievement(gomock.Any(), s.wallet, models.AchievementInput{Name: "Intro Course"}).Return(rec, nil)

		w := s.do(http.MethodPost, "/achievements", s.token(authz.ScopeCredentialUpsert), map[string]any{"name": "Intro Course"})
		s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
		s.True(strings.HasSuffix(w.Header().Get("Location"), rec.Address.String()))
	})

	s.Run("overlong name maps to invalid data", func() {
		s.mockService.EXPECT().CreateAchievement(gomock.Any(), s.wallet, gomock.Any()).
			Return(models.AchievementRecord{}, dErrors.New(dErrors.CodeSeedTooLarge, "seed component exceeds 32 bytes"))

		w := s.do(http.MethodPost, "/achievements", s.token(authz.ScopeCredentialUpsert),
			map[string]any{"name": strings.Repeat("n", 40)})
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("invalid_data", s.codeMinor(w))
	})

	s.Run("get by address", func() {
		s.mockService.EXPECT().GetAchievement(gomock.Any(), rec.Address).Return(rec, nil)

		w := s.do(http.MethodGet, "/achievements/"+rec.Address.String(), s.token(authz.ScopeCredentialReadonly), nil)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("malformed path address is 400", func() {
		w := s.do(http.MethodGet, "/credentials/zzz", s.token(authz.ScopeCredentialReadonly), nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
