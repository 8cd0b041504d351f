// Package models holds the badge records as anchored on the ledger and the
// Open Badges 3.0 shapes served to clients.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"openbadges/internal/ledger"
	"openbadges/pkg/domain"
)

// Profile is the issuer metadata an authority may replace over time.
type Profile struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Image       string `json:"image,omitempty"`
	Email       string `json:"email,omitempty"`
	Description string `json:"description,omitempty"`
}

type IssuerRecord struct {
	Address   domain.Address
	Authority domain.Address
	Nonce     byte
	Profile   Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DID is the profile identifier, derived from the authority and not from the
// ledger address, so it survives a program migration.
func (r IssuerRecord) DID() string {
	return r.Authority.DID()
}

type Criteria struct {
	ID        string `json:"id,omitempty"`
	Narrative string `json:"narrative,omitempty"`
}

type AchievementRecord struct {
	Address     domain.Address
	Issuer      domain.Address
	Nonce       byte
	Name        string
	Description string
	Criteria    Criteria
	Image       string
	CreatedAt   time.Time
}

// CredentialRecord is one anchored AchievementCredential. AchievementName is
// a snapshot taken at issuance so listings need no achievement reads.
type CredentialRecord struct {
	Address         domain.Address
	Achievement     domain.Address
	Issuer          domain.Address
	Recipient       domain.Address
	Nonce           byte
	AchievementName string
	IssuedAt        time.Time
	ValidFrom       time.Time
	ValidUntil      *time.Time
	Subject         json.RawMessage
	Status          *StatusEntry
}

type issuerData struct {
	Authority domain.Address `json:"authority"`
	Profile
}

type achievementData struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Criteria    Criteria `json:"criteria"`
	Image       string   `json:"image,omitempty"`
}

type credentialData struct {
	AchievementName string          `json:"achievement_name"`
	IssuedAt        time.Time       `json:"issued_at"`
	ValidFrom       time.Time       `json:"valid_from"`
	ValidUntil      *time.Time      `json:"valid_until,omitempty"`
	Subject         json.RawMessage `json:"subject"`
	Status          *StatusEntry    `json:"status,omitempty"`
}

// ToAccount converts the record into its ledger representation.
func (r IssuerRecord) ToAccount() (ledger.Account, error) {
	data, err := json.Marshal(issuerData{Authority: r.Authority, Profile: r.Profile})
	if err != nil {
		return ledger.Account{}, fmt.Errorf("encode issuer: %w", err)
	}
	return ledger.Account{
		Address:   r.Address,
		Kind:      ledger.KindIssuer,
		Nonce:     r.Nonce,
		Data:      data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func IssuerFromAccount(acct ledger.Account) (IssuerRecord, error) {
	if acct.Kind != ledger.KindIssuer {
		return IssuerRecord{}, ErrWrongKind
	}
	var d issuerData
	if err := json.Unmarshal(acct.Data, &d); err != nil {
		return IssuerRecord{}, fmt.Errorf("decode issuer %s: %w", acct.Address, err)
	}
	return IssuerRecord{
		Address:   acct.Address,
		Authority: d.Authority,
		Nonce:     acct.Nonce,
		Profile:   d.Profile,
		CreatedAt: acct.CreatedAt,
		UpdatedAt: acct.UpdatedAt,
	}, nil
}

func (r AchievementRecord) ToAccount() (ledger.Account, error) {
	data, err := json.Marshal(achievementData{
		Name:        r.Name,
		Description: r.Description,
		Criteria:    r.Criteria,
		Image:       r.Image,
	})
	if err != nil {
		return ledger.Account{}, fmt.Errorf("encode achievement: %w", err)
	}
	return ledger.Account{
		Address:   r.Address,
		Kind:      ledger.KindAchievement,
		Nonce:     r.Nonce,
		Issuer:    r.Issuer,
		Data:      data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.CreatedAt,
	}, nil
}

func AchievementFromAccount(acct ledger.Account) (AchievementRecord, error) {
	if acct.Kind != ledger.KindAchievement {
		return AchievementRecord{}, ErrWrongKind
	}
	var d achievementData
	if err := json.Unmarshal(acct.Data, &d); err != nil {
		return AchievementRecord{}, fmt.Errorf("decode achievement %s: %w", acct.Address, err)
	}
	return AchievementRecord{
		Address:     acct.Address,
		Issuer:      acct.Issuer,
		Nonce:       acct.Nonce,
		Name:        d.Name,
		Description: d.Description,
		Criteria:    d.Criteria,
		Image:       d.Image,
		CreatedAt:   acct.CreatedAt,
	}, nil
}

func (r CredentialRecord) ToAccount() (ledger.Account, error) {
	data, err := json.Marshal(credentialData{
		AchievementName: r.AchievementName,
		IssuedAt:        r.IssuedAt,
		ValidFrom:       r.ValidFrom,
		ValidUntil:      r.ValidUntil,
		Subject:         r.Subject,
		Status:          r.Status,
	})
	if err != nil {
		return ledger.Account{}, fmt.Errorf("encode credential: %w", err)
	}
	return ledger.Account{
		Address:     r.Address,
		Kind:        ledger.KindCredential,
		Nonce:       r.Nonce,
		Issuer:      r.Issuer,
		Achievement: r.Achievement,
		Recipient:   r.Recipient,
		Data:        data,
		CreatedAt:   r.IssuedAt,
		UpdatedAt:   r.IssuedAt,
	}, nil
}

func CredentialFromAccount(acct ledger.Account) (CredentialRecord, error) {
	if acct.Kind != ledger.KindCredential {
		return CredentialRecord{}, ErrWrongKind
	}
	var d credentialData
	if err := json.Unmarshal(acct.Data, &d); err != nil {
		return CredentialRecord{}, fmt.Errorf("decode credential %s: %w", acct.Address, err)
	}
	return CredentialRecord{
		Address:         acct.Address,
		Achievement:     acct.Achievement,
		Issuer:          acct.Issuer,
		Recipient:       acct.Recipient,
		Nonce:           acct.Nonce,
		AchievementName: d.AchievementName,
		IssuedAt:        d.IssuedAt,
		ValidFrom:       d.ValidFrom,
		ValidUntil:      d.ValidUntil,
		Subject:         d.Subject,
		Status:          d.Status,
	}, nil
}
