package service

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"openbadges/internal/audit"
	"openbadges/internal/badges/models"
	"openbadges/internal/ledger"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/sentinel"
	"openbadges/pkg/requestcontext"
)

const (
	// statusAttempts bounds retries when a concurrent writer changed the list
	// between our read and our conditional replace.
	statusAttempts = 3
	// MaxStatusChange caps the indices named in one status change.
	MaxStatusChange = 1000
)

// CreateRevocationList anchors an empty status list for authority. The
// authority must already have an issuer profile; every credential that points
// into the list must belong to that issuer.
func (s *Service) CreateRevocationList(ctx context.Context, authority domain.Address, in models.RevocationListInput) (rec models.RevocationListRecord, err error) {
	ctx, span := s.startSpan(ctx, "badges.CreateRevocationList", attribute.String("authority", authority.String()))
	defer func() { endSpan(span, err) }()

	in, err = normalizeRevocationList(in)
	if err != nil {
		return models.RevocationListRecord{}, err
	}

	issuerAddr, err := s.ResolveIssuerAddress(authority)
	if err != nil {
		return models.RevocationListRecord{}, err
	}
	if _, err := s.loadIssuer(ctx, issuerAddr); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return models.RevocationListRecord{}, dErrors.New(dErrors.CodeNotFound, "issuer profile not anchored")
		}
		return models.RevocationListRecord{}, err
	}

	d, err := s.engine.RevocationList(authority, in.ListID)
	if err != nil {
		return models.RevocationListRecord{}, translateDerivation(err)
	}
	s.metrics.ObserveNonce(d.Nonce)

	now := requestcontext.Now(ctx).UTC()
	rec = models.RevocationListRecord{
		Address:       d.Address,
		Authority:     authority,
		Issuer:        issuerAddr,
		Nonce:         d.Nonce,
		ListID:        in.ListID,
		Capacity:      in.Capacity,
		Name:          in.Name,
		Description:   in.Description,
		StatusListURL: in.StatusListURL,
		Bits:          models.NewStatusBits(in.Capacity),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	acct, err := rec.ToAccount()
	if err != nil {
		return models.RevocationListRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode revocation list")
	}
	if err := s.createAccount(ctx, acct); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return models.RevocationListRecord{}, dErrors.New(dErrors.CodeConflict, "revocation list already exists for this authority")
		}
		return models.RevocationListRecord{}, translateLedger(err, "revocation list not found")
	}
	rec, err = models.RevocationListFromAccount(acct)
	if err != nil {
		return models.RevocationListRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode revocation list")
	}

	s.logger.InfoContext(ctx, "revocation list created",
		"request_id", requestcontext.RequestID(ctx),
		"list", rec.Address.String(),
		"list_id", rec.ListID,
		"capacity", rec.Capacity,
	)
	s.emit(ctx, audit.Event{
		Action:  audit.ActionRevocationListCreated,
		Subject: rec.Address.String(),
		Issuer:  issuerAddr.String(),
	})
	return rec, nil
}

func normalizeRevocationList(in models.RevocationListInput) (models.RevocationListInput, error) {
	in.ListID = strings.TrimSpace(in.ListID)
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.StatusListURL = strings.TrimSpace(in.StatusListURL)

	switch {
	case in.ListID == "":
		return in, dErrors.New(dErrors.CodeValidation, "listId is required")
	case in.Capacity == 0 || in.Capacity > models.MaxRevocationCapacity:
		return in, dErrors.New(dErrors.CodeValidation, "capacity must be between 1 and "+strconv.Itoa(models.MaxRevocationCapacity))
	case in.Name == "" || in.Description == "":
		return in, dErrors.New(dErrors.CodeValidation, "name and description are required")
	}
	if in.StatusListURL != "" {
		u, err := url.Parse(in.StatusListURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return in, dErrors.New(dErrors.CodeValidation, "statusListUrl must be an absolute http(s) URL")
		}
	}
	return in, nil
}

// GetRevocationList reads a status list straight from the ledger.
func (s *Service) GetRevocationList(ctx context.Context, addr domain.Address) (rec models.RevocationListRecord, err error) {
	ctx, span := s.startSpan(ctx, "badges.GetRevocationList", attribute.String("list", addr.String()))
	defer func() { endSpan(span, err) }()

	return s.loadRevocationList(ctx, addr)
}

func (s *Service) loadRevocationList(ctx context.Context, addr domain.Address) (models.RevocationListRecord, error) {
	rec, _, err := s.readRevocationList(ctx, addr)
	return rec, err
}

// readRevocationList also returns the account as stored, whose data is the
// expectation for a later conditional replace.
func (s *Service) readRevocationList(ctx context.Context, addr domain.Address) (models.RevocationListRecord, ledger.Account, error) {
	acct, err := s.readAccount(ctx, addr)
	if err != nil {
		return models.RevocationListRecord{}, ledger.Account{}, translateLedger(err, "revocation list not found")
	}
	rec, err := models.RevocationListFromAccount(acct)
	if err != nil {
		return models.RevocationListRecord{}, ledger.Account{}, translateLedger(err, "revocation list not found")
	}
	return rec, acct, nil
}

// UpdateCredentialStatus applies a batch of revocations and reactivations to
// one list. Only the list's authority may change it. The change is all or
// nothing; an index beyond capacity rejects the whole batch.
func (s *Service) UpdateCredentialStatus(ctx context.Context, authority, list domain.Address, change models.StatusChange) (rec models.RevocationListRecord, err error) {
	ctx, span := s.startSpan(ctx, "badges.UpdateCredentialStatus",
		attribute.String("list", list.String()),
		attribute.Int("revoke", len(change.Revoke)),
		attribute.Int("reactivate", len(change.Reactivate)),
	)
	defer func() { endSpan(span, err) }()

	switch n := len(change.Revoke) + len(change.Reactivate); {
	case n == 0:
		return models.RevocationListRecord{}, dErrors.New(dErrors.CodeValidation, "at least one index to revoke or reactivate is required")
	case n > MaxStatusChange:
		return models.RevocationListRecord{}, dErrors.New(dErrors.CodeValidation, "status change exceeds "+strconv.Itoa(MaxStatusChange)+" indices")
	}
	change.Reason = strings.TrimSpace(change.Reason)

	for range statusAttempts {
		current, prev, err := s.readRevocationList(ctx, list)
		if err != nil {
			return models.RevocationListRecord{}, err
		}
		if current.Authority != authority {
			return models.RevocationListRecord{}, dErrors.New(dErrors.CodeForbidden, "only the list authority may change credential status")
		}

		next, err := current.Apply(change)
		if err != nil {
			return models.RevocationListRecord{}, dErrors.Wrap(err, dErrors.CodeValidation, messageForIndex(err))
		}
		next.UpdatedAt = requestcontext.Now(ctx).UTC()

		acct, err := next.ToAccount()
		if err != nil {
			return models.RevocationListRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode revocation list")
		}

		err = s.timed("compare_and_replace", func() error {
			return s.ledger.CompareAndReplace(ctx, acct, prev.Data)
		})
		if errors.Is(err, sentinel.ErrConflict) {
			s.logger.DebugContext(ctx, "revocation list changed concurrently, retrying",
				"request_id", requestcontext.RequestID(ctx),
				"list", list.String(),
			)
			continue
		}
		if err != nil {
			return models.RevocationListRecord{}, translateLedger(err, "revocation list not found")
		}

		s.logger.InfoContext(ctx, "credential status changed",
			"request_id", requestcontext.RequestID(ctx),
			"list", list.String(),
			"revoked", change.Revoke,
			"reactivated", change.Reactivate,
			"reason", change.Reason,
		)
		s.emit(ctx, audit.Event{
			Action:  audit.ActionCredentialStatus,
			Subject: list.String(),
			Issuer:  next.Issuer.String(),
			Reason:  change.Reason,
		})
		return next, nil
	}
	return models.RevocationListRecord{}, dErrors.New(dErrors.CodeConflict, "revocation list is being changed concurrently, retry later")
}

func messageForIndex(err error) string {
	if errors.Is(err, models.ErrIndexOutOfRange) {
		return err.Error()
	}
	return "invalid status change"
}

// RevokeCredential sets the status bit the credential was issued with.
func (s *Service) RevokeCredential(ctx context.Context, authority, credential domain.Address, reason string) (models.RevocationListRecord, error) {
	return s.setCredentialRevoked(ctx, authority, credential, reason, true)
}

// ReactivateCredential clears the status bit the credential was issued with.
func (s *Service) ReactivateCredential(ctx context.Context, authority, credential domain.Address, reason string) (models.RevocationListRecord, error) {
	return s.setCredentialRevoked(ctx, authority, credential, reason, false)
}

func (s *Service) setCredentialRevoked(ctx context.Context, authority, credential domain.Address, reason string, revoked bool) (models.RevocationListRecord, error) {
	rec, err := s.GetCredential(ctx, credential)
	if err != nil {
		return models.RevocationListRecord{}, err
	}
	if rec.Status == nil {
		return models.RevocationListRecord{}, dErrors.New(dErrors.CodeConflict, "credential was issued without a status entry")
	}

	change := models.StatusChange{Reason: reason}
	if revoked {
		change.Revoke = []uint32{rec.Status.Index}
	} else {
		change.Reactivate = []uint32{rec.Status.Index}
	}
	return s.UpdateCredentialStatus(ctx, authority, rec.Status.List, change)
}

// statusEntryFor validates that index is usable on list for issuer and
// returns the entry to anchor with the credential.
func (s *Service) statusEntryFor(ctx context.Context, issuer domain.Address, want models.StatusEntry) (models.StatusEntry, error) {
	list, err := s.loadRevocationList(ctx, want.List)
	if err != nil {
		return models.StatusEntry{}, err
	}
	if list.Issuer != issuer {
		return models.StatusEntry{}, dErrors.New(dErrors.CodeForbidden, "revocation list belongs to another issuer")
	}
	revoked, err := list.IsRevoked(want.Index)
	if err != nil {
		return models.StatusEntry{}, dErrors.New(dErrors.CodeValidation, messageForIndex(err))
	}
	if revoked {
		return models.StatusEntry{}, dErrors.New(dErrors.CodeConflict, "status index "+strconv.FormatUint(uint64(want.Index), 10)+" is already revoked")
	}
	return models.StatusEntry{
		List:                 list.Address,
		Index:                want.Index,
		StatusListCredential: list.StatusListCredentialID(),
	}, nil
}

// VerifyCredential re-derives the credential address from its anchored
// triple, checks the achievement still names the same issuer, consults the
// revocation list and compares the validity window with the request time.
// A missing list counts as revoked.
func (s *Service) VerifyCredential(ctx context.Context, addr domain.Address) (res models.VerificationResult, err error) {
	ctx, span := s.startSpan(ctx, "badges.VerifyCredential", attribute.String("credential", addr.String()))
	defer func() { endSpan(span, err) }()

	rec, err := s.GetCredential(ctx, addr)
	if err != nil {
		return models.VerificationResult{}, err
	}
	now := requestcontext.Now(ctx).UTC()
	res = models.VerificationResult{
		Credential:  addr,
		NotYetValid: now.Before(rec.ValidFrom),
		Expired:     rec.ValidUntil != nil && now.After(*rec.ValidUntil),
		CheckedAt:   now,
	}

	d, err := s.engine.Credential(rec.Achievement, rec.Issuer, rec.Recipient)
	if err != nil {
		return models.VerificationResult{}, translateDerivation(err)
	}
	res.AddressVerified = d.Address == rec.Address && d.Nonce == rec.Nonce

	achievement, err := s.loadAchievement(ctx, rec.Achievement)
	switch {
	case err == nil:
		res.IssuerMatches = achievement.Issuer == rec.Issuer
	case !dErrors.HasCode(err, dErrors.CodeNotFound):
		return models.VerificationResult{}, err
	}

	if rec.Status != nil {
		res.StatusChecked = true
		res.Revoked, err = s.statusRevoked(ctx, rec)
		if err != nil {
			return models.VerificationResult{}, err
		}
	}

	span.SetAttributes(attribute.Bool("valid", res.Valid()))
	s.logger.InfoContext(ctx, "credential verified",
		"request_id", requestcontext.RequestID(ctx),
		"credential", addr.String(),
		"valid", res.Valid(),
		"revoked", res.Revoked,
	)
	return res, nil
}

func (s *Service) statusRevoked(ctx context.Context, rec models.CredentialRecord) (bool, error) {
	list, err := s.loadRevocationList(ctx, rec.Status.List)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if list.Issuer != rec.Issuer {
		return true, nil
	}
	revoked, err := list.IsRevoked(rec.Status.Index)
	if err != nil {
		return true, nil
	}
	return revoked, nil
}
