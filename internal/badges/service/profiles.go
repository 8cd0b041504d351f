package service

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"openbadges/internal/audit"
	"openbadges/internal/badges/models"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/sentinel"
	"openbadges/pkg/requestcontext"
)

const maxProfileField = 512

// RegisterIssuer anchors the issuer profile of authority. A second
// registration is a conflict; use UpdateProfile to change metadata.
func (s *Service) RegisterIssuer(ctx context.Context, authority domain.Address, profile models.Profile) (rec models.IssuerRecord, err error) {
	ctx, span := s.startSpan(ctx, "badges.RegisterIssuer", attribute.String("authority", authority.String()))
	defer func() { endSpan(span, err) }()

	profile, err = normalizeProfile(profile)
	if err != nil {
		return models.IssuerRecord{}, err
	}
	return s.createIssuer(ctx, authority, profile)
}

func (s *Service) createIssuer(ctx context.Context, authority domain.Address, profile models.Profile) (models.IssuerRecord, error) {
	d, err := s.engine.Issuer(authority)
	if err != nil {
		return models.IssuerRecord{}, translateDerivation(err)
	}
	s.metrics.ObserveNonce(d.Nonce)

	now := requestcontext.Now(ctx).UTC()
	rec := models.IssuerRecord{
		Address:   d.Address,
		Authority: authority,
		Nonce:     d.Nonce,
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	acct, err := rec.ToAccount()
	if err != nil {
		return models.IssuerRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode issuer")
	}
	if err := s.createAccount(ctx, acct); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return models.IssuerRecord{}, dErrors.New(dErrors.CodeConflict, "issuer profile already anchored")
		}
		return models.IssuerRecord{}, translateLedger(err, "profile not found")
	}

	s.logger.InfoContext(ctx, "issuer registered",
		"request_id", requestcontext.RequestID(ctx),
		"issuer", rec.Address.String(),
		"authority", authority.String(),
	)
	s.emit(ctx, audit.Event{
		Action:  audit.ActionIssuerRegistered,
		Subject: rec.Address.String(),
		Issuer:  rec.Address.String(),
	})
	return rec, nil
}

// GetProfile reads the issuer profile anchored for authority.
func (s *Service) GetProfile(ctx context.Context, authority domain.Address) (rec models.IssuerRecord, err error) {
	ctx, span := s.startSpan(ctx, "badges.GetProfile", attribute.String("authority", authority.String()))
	defer func() { endSpan(span, err) }()

	addr, err := s.ResolveIssuerAddress(authority)
	if err != nil {
		return models.IssuerRecord{}, err
	}
	return s.loadIssuer(ctx, addr)
}

func (s *Service) loadIssuer(ctx context.Context, addr domain.Address) (models.IssuerRecord, error) {
	acct, err := s.readAccount(ctx, addr)
	if err != nil {
		return models.IssuerRecord{}, translateLedger(err, "profile not found")
	}
	rec, err := models.IssuerFromAccount(acct)
	if err != nil {
		return models.IssuerRecord{}, translateLedger(err, "profile not found")
	}
	return rec, nil
}

// UpdateProfile replaces the profile metadata of authority, anchoring the
// profile first when it does not exist. Address and authority never change.
// created reports whether this call anchored the profile.
func (s *Service) UpdateProfile(ctx context.Context, authority domain.Address, profile models.Profile) (rec models.IssuerRecord, created bool, err error) {
	ctx, span := s.startSpan(ctx, "badges.UpdateProfile", attribute.String("authority", authority.String()))
	defer func() { endSpan(span, err) }()

	profile, err = normalizeProfile(profile)
	if err != nil {
		return models.IssuerRecord{}, false, err
	}

	addr, err := s.ResolveIssuerAddress(authority)
	if err != nil {
		return models.IssuerRecord{}, false, err
	}

	rec, err = s.loadIssuer(ctx, addr)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		rec, err = s.createIssuer(ctx, authority, profile)
		if err == nil {
			return rec, true, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			return models.IssuerRecord{}, false, err
		}
		// Lost a concurrent create; replace what the winner wrote.
		rec, err = s.loadIssuer(ctx, addr)
	}
	if err != nil {
		return models.IssuerRecord{}, false, err
	}

	rec.Profile = profile
	rec.UpdatedAt = requestcontext.Now(ctx).UTC()
	acct, err := rec.ToAccount()
	if err != nil {
		return models.IssuerRecord{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode issuer")
	}
	err = s.timed("replace", func() error { return s.ledger.Replace(ctx, acct) })
	if err != nil {
		return models.IssuerRecord{}, false, translateLedger(err, "profile not found")
	}

	s.logger.InfoContext(ctx, "profile updated",
		"request_id", requestcontext.RequestID(ctx),
		"issuer", rec.Address.String(),
	)
	s.emit(ctx, audit.Event{
		Action:  audit.ActionProfileUpdated,
		Subject: rec.Address.String(),
		Issuer:  rec.Address.String(),
	})
	return rec, false, nil
}

func normalizeProfile(p models.Profile) (models.Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.URL = strings.TrimSpace(p.URL)
	p.Image = strings.TrimSpace(p.Image)
	p.Email = strings.TrimSpace(p.Email)
	p.Description = strings.TrimSpace(p.Description)

	if p.Name == "" {
		return models.Profile{}, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	for field, v := range map[string]string{"name": p.Name, "url": p.URL, "image": p.Image, "email": p.Email} {
		if len(v) > maxProfileField {
			return models.Profile{}, dErrors.New(dErrors.CodeValidation, field+" is too long")
		}
	}
	if p.URL != "" {
		if u, err := url.Parse(p.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return models.Profile{}, dErrors.New(dErrors.CodeValidation, "url must be an absolute URL")
		}
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return models.Profile{}, dErrors.New(dErrors.CodeValidation, "email is invalid")
		}
	}
	return p, nil
}
