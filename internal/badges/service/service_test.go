package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"openbadges/internal/audit"
	"openbadges/internal/badges/metrics"
	"openbadges/internal/badges/models"
	"openbadges/internal/badges/service/mocks"
	"openbadges/internal/ledger"
	"openbadges/pkg/derivation"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/sentinel"
	"openbadges/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Ledger AuditPublisher
type ServiceSuite struct {
	suite.Suite
	ctrl               *gomock.Controller
	mockLedger         *mocks.MockLedger
	mockAuditPublisher *mocks.MockAuditPublisher
	metrics            *metrics.Metrics
	engine             *derivation.Engine
	service            *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockLedger = mocks.NewMockLedger(s.ctrl)
	s.mockAuditPublisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.engine = derivation.New(testAddress("program"))
	s.service = New(s.mockLedger, s.engine,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.mockAuditPublisher),
		WithMetrics(s.metrics),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func testAddress(label string) domain.Address {
	return domain.Address(sha256.Sum256([]byte(label)))
}

// fixture derives the addresses of one issuer, achievement and credential.
type fixture struct {
	authority   domain.Address
	issuer      domain.Address
	achievement domain.Address
	recipient   domain.Address
	credential  domain.Address
}

func (s *ServiceSuite) newFixture(name string) fixture {
	f := fixture{
		authority: testAddress("authority-" + name),
		recipient: testAddress("recipient-" + name),
	}
	iss, err := s.engine.Issuer(f.authority)
	s.Require().NoError(err)
	f.issuer = iss.Address
	ach, err := s.engine.Achievement(f.issuer, name)
	s.Require().NoError(err)
	f.achievement = ach.Address
	cred, err := s.engine.Credential(f.achievement, f.issuer, f.recipient)
	s.Require().NoError(err)
	f.credential = cred.Address
	return f
}

func (s *ServiceSuite) achievementAccount(f fixture, name string) ledger.Account {
	acct, err := models.AchievementRecord{
		Address:   f.achievement,
		Issuer:    f.issuer,
		Name:      name,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}.ToAccount()
	s.Require().NoError(err)
	return acct
}

func (s *ServiceSuite) TestIssueCredential() {
	ctx := context.Background()
	f := s.newFixture("Intro Course")

	s.Run("creates the credential at the derived address", func() {
		s.mockLedger.EXPECT().Read(gomock.Any(), f.achievement).Return(s.achievementAccount(f, "Intro Course"), nil)
		s.mockLedger.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, acct ledger.Account) error {
				s.Equal(f.credential, acct.Address)
				s.Equal(ledger.KindCredential, acct.Kind)
				s.Equal(f.recipient, acct.Recipient)
				return nil
			})
		s.mockAuditPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				s.Equal(audit.ActionCredentialIssued, e.Action)
				s.Equal(f.credential.String(), e.Subject)
				return nil
			})

		addr, err := s.service.IssueCredential(ctx, models.IssueRequest{
			Achievement: f.achievement, Issuer: f.issuer, Recipient: f.recipient,
		})
		s.Require().NoError(err)
		s.Equal(f.credential, addr)
	})

	s.Run("existing address is a duplicate issuance and emits nothing", func() {
		s.mockLedger.EXPECT().Read(gomock.Any(), f.achievement).Return(s.achievementAccount(f, "Intro Course"), nil)
		s.mockLedger.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyExists)

		addr, err := s.service.IssueCredential(ctx, models.IssueRequest{
			Achievement: f.achievement, Issuer: f.issuer, Recipient: f.recipient,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateIssuance))
		s.Equal(f.credential, addr)
	})

	s.Run("achievement owned by another issuer is forbidden", func() {
		other := s.newFixture("Other Course")
		acct := s.achievementAccount(other, "Other Course")
		s.mockLedger.EXPECT().Read(gomock.Any(), f.achievement).Return(acct, nil)

		_, err := s.service.IssueCredential(ctx, models.IssueRequest{
			Achievement: f.achievement, Issuer: f.issuer, Recipient: f.recipient,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("missing achievement is not found", func() {
		s.mockLedger.EXPECT().Read(gomock.Any(), f.achievement).Return(ledger.Account{}, sentinel.ErrNotFound)

		_, err := s.service.IssueCredential(ctx, models.IssueRequest{
			Achievement: f.achievement, Issuer: f.issuer, Recipient: f.recipient,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("ledger outage maps to chain unavailable", func() {
		s.mockLedger.EXPECT().Read(gomock.Any(), f.achievement).Return(ledger.Account{}, sentinel.ErrUnavailable)

		_, err := s.service.IssueCredential(ctx, models.IssueRequest{
			Achievement: f.achievement, Issuer: f.issuer, Recipient: f.recipient,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeChainUnavailable))
		s.True(dErrors.IsRetryable(err))
	})

	s.Run("validation fails before any ledger call", func() {
		until := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		cases := map[string]models.IssueRequest{
			"zero achievement": {Issuer: f.issuer, Recipient: f.recipient},
			"zero issuer":      {Achievement: f.achievement, Recipient: f.recipient},
			"zero recipient":   {Achievement: f.achievement, Issuer: f.issuer},
			"subject not an object": {
				Achievement: f.achievement, Issuer: f.issuer, Recipient: f.recipient,
				Subject: []byte(`["a"]`),
			},
			"validUntil before validFrom": {
				Achievement: f.achievement, Issuer: f.issuer, Recipient: f.recipient,
				ValidFrom: until.Add(time.Hour), ValidUntil: &until,
			},
		}
		for name, req := range cases {
			_, err := s.service.IssueCredential(ctx, req)
			s.Require().Error(err, name)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), name)
		}
	})
}

func (s *ServiceSuite) TestAuditFailureIsNotReported() {
	ctx := context.Background()
	f := s.newFixture("Fail Open")

	s.mockLedger.EXPECT().Read(gomock.Any(), f.achievement).Return(s.achievementAccount(f, "Fail Open"), nil)
	s.mockLedger.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(nil)
	s.mockAuditPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	addr, err := s.service.IssueCredential(ctx, models.IssueRequest{
		Achievement: f.achievement, Issuer: f.issuer, Recipient: f.recipient,
	})
	s.Require().NoError(err)
	s.Equal(f.credential, addr)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AuditFailures))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.IssuanceOutcome.WithLabelValues("created")))
}

func (s *ServiceSuite) TestGetCredential() {
	ctx := context.Background()
	f := s.newFixture("Reader")

	s.Run("wrong account kind is not found", func() {
		s.mockLedger.EXPECT().Read(gomock.Any(), f.achievement).Return(s.achievementAccount(f, "Reader"), nil)

		_, err := s.service.GetCredential(ctx, f.achievement)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown ledger error is internal", func() {
		s.mockLedger.EXPECT().Read(gomock.Any(), f.credential).Return(ledger.Account{}, errors.New("boom"))

		_, err := s.service.GetCredential(ctx, f.credential)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestListCredentialsClampsLimit() {
	ctx := context.Background()

	s.Run("zero limit uses the default page size", func() {
		s.mockLedger.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, f ledger.Filter) ([]ledger.Account, int, error) {
				s.Equal(models.DefaultPageLimit, f.Limit)
				s.Equal(ledger.KindCredential, f.Kind)
				return nil, 0, nil
			})
		recs, total, err := s.service.ListCredentials(ctx, models.ListingQuery{})
		s.Require().NoError(err)
		s.Empty(recs)
		s.Zero(total)
	})

	s.Run("oversized limit is capped", func() {
		s.mockLedger.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, f ledger.Filter) ([]ledger.Account, int, error) {
				s.Equal(models.MaxPageLimit, f.Limit)
				return nil, 0, nil
			})
		_, _, err := s.service.ListCredentials(ctx, models.ListingQuery{Limit: 5000})
		s.Require().NoError(err)
	})

	s.Run("ledger outage maps to chain unavailable", func() {
		s.mockLedger.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, 0, sentinel.ErrUnavailable)
		_, _, err := s.service.ListCredentials(ctx, models.ListingQuery{})
		s.True(dErrors.HasCode(err, dErrors.CodeChainUnavailable))
	})
}

func (s *ServiceSuite) TestRegisterIssuer() {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := s.newFixture("Registrar")

	s.Run("anchors the profile at the derived address", func() {
		s.mockLedger.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, acct ledger.Account) error {
				s.Equal(f.issuer, acct.Address)
				s.Equal(ledger.KindIssuer, acct.Kind)
				return nil
			})
		s.mockAuditPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

		rec, err := s.service.RegisterIssuer(ctx, f.authority, models.Profile{Name: "  Example University "})
		s.Require().NoError(err)
		s.Equal("Example University", rec.Profile.Name)
		s.Equal(f.authority.DID(), rec.DID())
	})

	s.Run("second registration conflicts", func() {
		s.mockLedger.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyExists)

		_, err := s.service.RegisterIssuer(ctx, f.authority, models.Profile{Name: "Example University"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("profile is validated", func() {
		for name, p := range map[string]models.Profile{
			"missing name":    {},
			"relative url":    {Name: "x", URL: "/about"},
			"malformed email": {Name: "x", Email: "not-an-email"},
		} {
			_, err := s.service.RegisterIssuer(ctx, f.authority, p)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), name)
		}
	})
}

func (s *ServiceSuite) TestUpdateProfileRecoversFromLostCreate() {
	ctx := context.Background()
	f := s.newFixture("Racer")
	winner, err := models.IssuerRecord{
		Address:   f.issuer,
		Authority: f.authority,
		Profile:   models.Profile{Name: "Winner"},
	}.ToAccount()
	s.Require().NoError(err)

	gomock.InOrder(
		s.mockLedger.EXPECT().Read(gomock.Any(), f.issuer).Return(ledger.Account{}, sentinel.ErrNotFound),
		s.mockLedger.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyExists),
		s.mockLedger.EXPECT().Read(gomock.Any(), f.issuer).Return(winner, nil),
		s.mockLedger.EXPECT().Replace(gomock.Any(), gomock.Any()).Return(nil),
	)
	s.mockAuditPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	rec, created, err := s.service.UpdateProfile(ctx, f.authority, models.Profile{Name: "Loser"})
	s.Require().NoError(err)
	s.False(created)
	s.Equal("Loser", rec.Profile.Name)
}

func (s *ServiceSuite) TestCreateAchievementRequiresIssuer() {
	ctx := context.Background()
	f := s.newFixture("Orphan")
	s.mockLedger.EXPECT().Read(gomock.Any(), f.issuer).Return(ledger.Account{}, sentinel.ErrNotFound)

	_, err := s.service.CreateAchievement(ctx, f.authority, models.AchievementInput{Name: "Orphan"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestIssueBatchBounds() {
	ctx := context.Background()

	_, err := s.service.IssueBatch(ctx, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.IssueBatch(ctx, make([]models.IssueRequest, MaxBatchSize+1))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
