package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"openbadges/internal/audit"
	"openbadges/internal/badges/models"
	"openbadges/internal/ledger"
	"openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/sentinel"
	"openbadges/pkg/requestcontext"
)

// IssueCredential anchors a new credential for the (achievement, issuer,
// recipient) triple. The address is returned even when issuance fails with a
// duplicate, so callers can look up what is already anchored there.
func (s *Service) IssueCredential(ctx context.Context, req models.IssueRequest) (domain.Address, error) {
	rec, err := s.issue(ctx, req)
	return rec.Address, err
}

// UpsertCredential issues a credential, treating a resubmission of the same
// claim as success. created reports whether this call performed the write.
func (s *Service) UpsertCredential(ctx context.Context, req models.IssueRequest) (rec models.CredentialRecord, created bool, err error) {
	rec, err = s.issue(ctx, req)
	if err == nil {
		return rec, true, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeDuplicateIssuance) {
		return models.CredentialRecord{}, false, err
	}

	existing, gerr := s.GetCredential(ctx, rec.Address)
	if gerr != nil {
		return models.CredentialRecord{}, false, gerr
	}
	if models.SameClaim(existing.Subject, rec.Subject) {
		return existing, false, nil
	}
	return models.CredentialRecord{}, false, dErrors.New(dErrors.CodeDuplicateIssuance,
		"credential "+existing.Address.String()+" already issued with a different subject")
}

func (s *Service) issue(ctx context.Context, req models.IssueRequest) (rec models.CredentialRecord, err error) {
	ctx, span := s.startSpan(ctx, "badges.IssueCredential",
		attribute.String("achievement", req.Achievement.String()),
		attribute.String("issuer", req.Issuer.String()),
	)
	defer func() { endSpan(span, err) }()

	subject, err := validateIssueRequest(req)
	if err != nil {
		s.metrics.IncrementIssuance("rejected")
		return models.CredentialRecord{}, err
	}

	d, err := s.engine.Credential(req.Achievement, req.Issuer, req.Recipient)
	if err != nil {
		s.metrics.IncrementIssuance("rejected")
		return models.CredentialRecord{}, translateDerivation(err)
	}
	s.metrics.ObserveNonce(d.Nonce)
	span.SetAttributes(attribute.String("credential", d.Address.String()))

	achievement, err := s.loadAchievement(ctx, req.Achievement)
	if err != nil {
		s.metrics.IncrementIssuance("rejected")
		return models.CredentialRecord{Address: d.Address}, err
	}
	if achievement.Issuer != req.Issuer {
		s.metrics.IncrementIssuance("rejected")
		return models.CredentialRecord{Address: d.Address}, dErrors.New(dErrors.CodeForbidden, "unauthorized issuer")
	}

	var status *models.StatusEntry
	if req.Status != nil {
		entry, err := s.statusEntryFor(ctx, req.Issuer, *req.Status)
		if err != nil {
			s.metrics.IncrementIssuance("rejected")
			return models.CredentialRecord{Address: d.Address}, err
		}
		status = &entry
	}

	now := requestcontext.Now(ctx).UTC()
	validFrom := req.ValidFrom
	if validFrom.IsZero() {
		validFrom = now
	}
	rec = models.CredentialRecord{
		Address:         d.Address,
		Achievement:     req.Achievement,
		Issuer:          req.Issuer,
		Recipient:       req.Recipient,
		Nonce:           d.Nonce,
		AchievementName: achievement.Name,
		IssuedAt:        now,
		ValidFrom:       validFrom.UTC(),
		ValidUntil:      req.ValidUntil,
		Subject:         subject,
		Status:          status,
	}
	acct, err := rec.ToAccount()
	if err != nil {
		s.metrics.IncrementIssuance("error")
		return rec, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode credential")
	}

	if err := s.createAccount(ctx, acct); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			s.metrics.IncrementIssuance("duplicate")
			s.logger.InfoContext(ctx, "duplicate issuance rejected",
				"request_id", requestcontext.RequestID(ctx),
				"credential", d.Address.String(),
			)
			return rec, dErrors.New(dErrors.CodeDuplicateIssuance, "credential already issued for this achievement and recipient")
		}
		s.metrics.IncrementIssuance("error")
		return rec, translateLedger(err, "credential not found")
	}

	s.metrics.IncrementIssuance("created")
	s.logger.InfoContext(ctx, "credential issued",
		"request_id", requestcontext.RequestID(ctx),
		"credential", d.Address.String(),
		"achievement", req.Achievement.String(),
		"recipient", req.Recipient.String(),
		"nonce", d.Nonce,
	)
	s.emit(ctx, audit.Event{
		Action:      audit.ActionCredentialIssued,
		Subject:     d.Address.String(),
		Issuer:      req.Issuer.String(),
		Achievement: req.Achievement.String(),
		Recipient:   req.Recipient.String(),
	})
	return rec, nil
}

func validateIssueRequest(req models.IssueRequest) (json.RawMessage, error) {
	if req.Achievement.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "achievement is required")
	}
	if req.Issuer.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer is required")
	}
	if req.Recipient.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	if req.ValidUntil != nil && !req.ValidFrom.IsZero() && req.ValidUntil.Before(req.ValidFrom) {
		return nil, dErrors.New(dErrors.CodeValidation, "validUntil must not precede validFrom")
	}
	if req.Status != nil && req.Status.List.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "credentialStatus.list is required")
	}

	subject := req.Subject
	if len(subject) == 0 {
		return json.RawMessage(`{}`), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(subject, &obj); err != nil || obj == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "subject must be a JSON object")
	}
	return subject, nil
}

func (s *Service) loadAchievement(ctx context.Context, addr domain.Address) (models.AchievementRecord, error) {
	acct, err := s.readAccount(ctx, addr)
	if err != nil {
		return models.AchievementRecord{}, translateLedger(err, "achievement not found")
	}
	rec, err := models.AchievementFromAccount(acct)
	if err != nil {
		return models.AchievementRecord{}, translateLedger(err, "achievement not found")
	}
	return rec, nil
}

// GetCredential reads a credential straight from the ledger.
func (s *Service) GetCredential(ctx context.Context, addr domain.Address) (rec models.CredentialRecord, err error) {
	ctx, span := s.startSpan(ctx, "badges.GetCredential", attribute.String("credential", addr.String()))
	defer func() { endSpan(span, err) }()

	acct, err := s.readAccount(ctx, addr)
	if err != nil {
		return models.CredentialRecord{}, translateLedger(err, "credential not found")
	}
	rec, err = models.CredentialFromAccount(acct)
	if err != nil {
		return models.CredentialRecord{}, translateLedger(err, "credential not found")
	}
	return rec, nil
}

// ListCredentials returns one page of credentials and the total match count.
func (s *Service) ListCredentials(ctx context.Context, q models.ListingQuery) (recs []models.CredentialRecord, total int, err error) {
	ctx, span := s.startSpan(ctx, "badges.ListCredentials")
	defer func() { endSpan(span, err) }()

	limit := q.Limit
	switch {
	case limit <= 0:
		limit = models.DefaultPageLimit
	case limit > models.MaxPageLimit:
		limit = models.MaxPageLimit
	}
	filter := ledger.Filter{
		Kind:        ledger.KindCredential,
		Issuer:      q.Issuer,
		Achievement: q.Achievement,
		Recipient:   q.Recipient,
		Since:       q.Since,
		Offset:      max(q.Offset, 0),
		Limit:       limit,
	}

	var accts []ledger.Account
	err = s.timed("list", func() error {
		var lerr error
		accts, total, lerr = s.ledger.List(ctx, filter)
		return lerr
	})
	if err != nil {
		return nil, 0, translateLedger(err, "credentials not found")
	}

	recs = make([]models.CredentialRecord, 0, len(accts))
	for _, acct := range accts {
		rec, err := models.CredentialFromAccount(acct)
		if err != nil {
			return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode credential")
		}
		recs = append(recs, rec)
	}
	span.SetAttributes(attribute.Int("total", total), attribute.Int("returned", len(recs)))
	return recs, total, nil
}

// IssueBatch issues up to MaxBatchSize credentials concurrently. Every
// request gets its own result; one failure never aborts the others. All
// credentials in a batch share one issuance timestamp.
func (s *Service) IssueBatch(ctx context.Context, reqs []models.IssueRequest) ([]models.IssueResult, error) {
	if len(reqs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch must contain at least one credential")
	}
	if len(reqs) > MaxBatchSize {
		return nil, dErrors.New(dErrors.CodeValidation, "batch exceeds maximum size")
	}

	ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))
	results := make([]models.IssueResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			addr, err := s.IssueCredential(ctx, req)
			results[i] = models.IssueResult{Address: addr, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}
