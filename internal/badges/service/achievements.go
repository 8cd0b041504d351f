package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"openbadges/internal/audit"
	"openbadges/internal/badges/models"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/sentinel"
	"openbadges/pkg/requestcontext"
)

// CreateAchievement anchors an achievement under the issuer profile of
// authority. The name is a derivation seed, so it is unique per issuer and
// limited to 32 bytes.
func (s *Service) CreateAchievement(ctx context.Context, authority domain.Address, in models.AchievementInput) (rec models.AchievementRecord, err error) {
	ctx, span := s.startSpan(ctx, "badges.CreateAchievement", attribute.String("authority", authority.String()))
	defer func() { endSpan(span, err) }()

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return models.AchievementRecord{}, dErrors.New(dErrors.CodeValidation, "name is required")
	}

	issuerAddr, err := s.ResolveIssuerAddress(authority)
	if err != nil {
		return models.AchievementRecord{}, err
	}
	if _, err := s.loadIssuer(ctx, issuerAddr); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return models.AchievementRecord{}, dErrors.New(dErrors.CodeNotFound, "issuer profile not anchored")
		}
		return models.AchievementRecord{}, err
	}

	d, err := s.engine.Achievement(issuerAddr, in.Name)
	if err != nil {
		return models.AchievementRecord{}, translateDerivation(err)
	}
	s.metrics.ObserveNonce(d.Nonce)

	rec = models.AchievementRecord{
		Address:     d.Address,
		Issuer:      issuerAddr,
		Nonce:       d.Nonce,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Criteria:    in.Criteria,
		Image:       strings.TrimSpace(in.Image),
		CreatedAt:   requestcontext.Now(ctx).UTC(),
	}
	acct, err := rec.ToAccount()
	if err != nil {
		return models.AchievementRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode achievement")
	}
	if err := s.createAccount(ctx, acct); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return models.AchievementRecord{}, dErrors.New(dErrors.CodeConflict, "achievement already exists for this issuer")
		}
		return models.AchievementRecord{}, translateLedger(err, "achievement not found")
	}

	s.logger.InfoContext(ctx, "achievement created",
		"request_id", requestcontext.RequestID(ctx),
		"achievement", rec.Address.String(),
		"issuer", issuerAddr.String(),
		"name", rec.Name,
	)
	s.emit(ctx, audit.Event{
		Action:      audit.ActionAchievementCreated,
		Subject:     rec.Address.String(),
		Issuer:      issuerAddr.String(),
		Achievement: rec.Address.String(),
	})
	return rec, nil
}

func (s *Service) GetAchievement(ctx context.Context, addr domain.Address) (rec models.AchievementRecord, err error) {
	ctx, span := s.startSpan(ctx, "badges.GetAchievement", attribute.String("achievement", addr.String()))
	defer func() { endSpan(span, err) }()

	return s.loadAchievement(ctx, addr)
}
