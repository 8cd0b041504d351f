package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"openbadges/internal/ledger"
	"openbadges/pkg/domain"
)

const (
	// MaxRevocationCapacity bounds the bitfield of one status list.
	MaxRevocationCapacity = 1_000_000
	statusListVersion     = "1.0"
)

// ErrIndexOutOfRange means a status index does not fit the list's capacity.
var ErrIndexOutOfRange = errors.New("status list index out of range")

type RevocationListInput struct {
	ListID        string
	Capacity      uint32
	Name          string
	Description   string
	StatusListURL string
}

// StatusChange flips status bits. Revocations are applied before
// reactivations, so an index named in both ends up active.
type StatusChange struct {
	Revoke     []uint32
	Reactivate []uint32
	Reason     string
}

// RevocationListRecord is a status bitfield anchored at
// derive("revocation_list", authority, listID). Bit i, counted from the most
// significant bit of the first byte, is set when index i is revoked.
type RevocationListRecord struct {
	Address       domain.Address
	Authority     domain.Address
	Issuer        domain.Address
	Nonce         byte
	ListID        string
	Capacity      uint32
	Name          string
	Description   string
	StatusListURL string
	Version       string
	Bits          []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewStatusBits(capacity uint32) []byte {
	return make([]byte, (int(capacity)+7)/8)
}

func (r RevocationListRecord) locate(index uint32) (int, byte, error) {
	if index >= r.Capacity || int(index/8) >= len(r.Bits) {
		return 0, 0, fmt.Errorf("%w: %d not below capacity %d", ErrIndexOutOfRange, index, r.Capacity)
	}
	return int(index / 8), 0x80 >> (index % 8), nil
}

func (r RevocationListRecord) IsRevoked(index uint32) (bool, error) {
	i, mask, err := r.locate(index)
	if err != nil {
		return false, err
	}
	return r.Bits[i]&mask != 0, nil
}

func (r *RevocationListRecord) setRevoked(index uint32, revoked bool) error {
	i, mask, err := r.locate(index)
	if err != nil {
		return err
	}
	if revoked {
		r.Bits[i] |= mask
	} else {
		r.Bits[i] &^= mask
	}
	return nil
}

// Apply returns a copy of r with change applied. Any out of range index
// fails the whole change and r is left as it was.
func (r RevocationListRecord) Apply(change StatusChange) (RevocationListRecord, error) {
	next := r
	next.Bits = bytes.Clone(r.Bits)
	for _, idx := range change.Revoke {
		if err := next.setRevoked(idx, true); err != nil {
			return r, err
		}
	}
	for _, idx := range change.Reactivate {
		if err := next.setRevoked(idx, false); err != nil {
			return r, err
		}
	}
	return next, nil
}

// RevokedCount is the number of set bits.
func (r RevocationListRecord) RevokedCount() int {
	n := 0
	for _, b := range r.Bits {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

// StatusListCredentialID is where credentials point to find this list.
func (r RevocationListRecord) StatusListCredentialID() string {
	if r.StatusListURL != "" {
		return r.StatusListURL
	}
	return r.Authority.DID() + "/status-lists/" + r.ListID
}

// EncodedList is the GZIP-compressed, base64url bitstring published in a
// StatusList2021 credential.
func (r RevocationListRecord) EncodedList() (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(r.Bits); err != nil {
		return "", fmt.Errorf("compress status list: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress status list: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeStatusList reverses EncodedList.
func DecodeStatusList(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode status list: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decompress status list: %w", err)
	}
	defer zr.Close()
	bits, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress status list: %w", err)
	}
	return bits, nil
}

// StatusEntry points a credential at one bit of a revocation list.
// StatusListCredential is a snapshot taken at issuance.
type StatusEntry struct {
	List                 domain.Address `json:"list"`
	Index                uint32         `json:"index"`
	StatusListCredential string         `json:"status_list_credential"`
}

type revocationListData struct {
	Authority     domain.Address `json:"authority"`
	ListID        string         `json:"list_id"`
	Capacity      uint32         `json:"capacity"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	StatusListURL string         `json:"status_list_url,omitempty"`
	Version       string         `json:"version"`
	Bits          []byte         `json:"status_bits"`
}

func (r RevocationListRecord) ToAccount() (ledger.Account, error) {
	version := r.Version
	if version == "" {
		version = statusListVersion
	}
	data, err := json.Marshal(revocationListData{
		Authority:     r.Authority,
		ListID:        r.ListID,
		Capacity:      r.Capacity,
		Name:          r.Name,
		Description:   r.Description,
		StatusListURL: r.StatusListURL,
		Version:       version,
		Bits:          r.Bits,
	})
	if err != nil {
		return ledger.Account{}, fmt.Errorf("encode revocation list: %w", err)
	}
	return ledger.Account{
		Address:   r.Address,
		Kind:      ledger.KindRevocationList,
		Nonce:     r.Nonce,
		Issuer:    r.Issuer,
		Data:      data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func RevocationListFromAccount(acct ledger.Account) (RevocationListRecord, error) {
	if acct.Kind != ledger.KindRevocationList {
		return RevocationListRecord{}, ErrWrongKind
	}
	var d revocationListData
	if err := json.Unmarshal(acct.Data, &d); err != nil {
		return RevocationListRecord{}, fmt.Errorf("decode revocation list %s: %w", acct.Address, err)
	}
	if want := len(NewStatusBits(d.Capacity)); len(d.Bits) != want {
		return RevocationListRecord{}, fmt.Errorf("decode revocation list %s: %d status bytes for capacity %d", acct.Address, len(d.Bits), d.Capacity)
	}
	return RevocationListRecord{
		Address:       acct.Address,
		Authority:     d.Authority,
		Issuer:        acct.Issuer,
		Nonce:         acct.Nonce,
		ListID:        d.ListID,
		Capacity:      d.Capacity,
		Name:          d.Name,
		Description:   d.Description,
		StatusListURL: d.StatusListURL,
		Version:       d.Version,
		Bits:          d.Bits,
		CreatedAt:     acct.CreatedAt,
		UpdatedAt:     acct.UpdatedAt,
	}, nil
}

// CredentialStatus is the W3C StatusList2021Entry embedded in a credential.
type CredentialStatus struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	StatusPurpose        string `json:"statusPurpose"`
	StatusListIndex      string `json:"statusListIndex"`
	StatusListCredential string `json:"statusListCredential"`
}

func newCredentialStatus(credentialID string, e StatusEntry) *CredentialStatus {
	idx := strconv.FormatUint(uint64(e.Index), 10)
	return &CredentialStatus{
		ID:                   credentialID + "#credential-status-" + idx,
		Type:                 "StatusList2021Entry",
		StatusPurpose:        "revocation",
		StatusListIndex:      idx,
		StatusListCredential: e.StatusListCredential,
	}
}

// StatusListCredential is the StatusList2021 credential a verifier fetches.
type StatusListCredential struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id"`
	Type              []string          `json:"type"`
	Issuer            IssuerRef         `json:"issuer"`
	ValidFrom         string            `json:"validFrom"`
	Name              string            `json:"name,omitempty"`
	Description       string            `json:"description,omitempty"`
	CredentialSubject StatusListSubject `json:"credentialSubject"`
}

type StatusListSubject struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	StatusPurpose string `json:"statusPurpose"`
	EncodedList   string `json:"encodedList"`
}

func NewStatusListCredential(r RevocationListRecord) (StatusListCredential, error) {
	encoded, err := r.EncodedList()
	if err != nil {
		return StatusListCredential{}, err
	}
	id := r.StatusListCredentialID()
	return StatusListCredential{
		Context: []string{
			"https://www.w3.org/ns/credentials/v2",
			"https://w3id.org/vc/status-list/2021/v1",
		},
		ID:          id,
		Type:        []string{"VerifiableCredential", "StatusList2021Credential"},
		Issuer:      IssuerRef{ID: r.Authority.DID(), Type: "Profile"},
		ValidFrom:   formatTime(r.UpdatedAt),
		Name:        r.Name,
		Description: r.Description,
		CredentialSubject: StatusListSubject{
			ID:            id + "#list",
			Type:          "StatusList2021",
			StatusPurpose: "revocation",
			EncodedList:   encoded,
		},
	}, nil
}

// RevocationListDocument is the management view of a list.
type RevocationListDocument struct {
	ID                   string `json:"id"`
	Address              string `json:"address"`
	ListID               string `json:"listId"`
	Issuer               string `json:"issuer"`
	Capacity             uint32 `json:"capacity"`
	Revoked              int    `json:"revoked"`
	Name                 string `json:"name"`
	Description          string `json:"description"`
	StatusListCredential string `json:"statusListCredential"`
	Version              string `json:"version"`
	CreatedAt            string `json:"createdAt"`
	UpdatedAt            string `json:"updatedAt"`
}

func NewRevocationListDocument(r RevocationListRecord) RevocationListDocument {
	return RevocationListDocument{
		ID:                   r.Address.DID(),
		Address:              r.Address.String(),
		ListID:               r.ListID,
		Issuer:               r.Issuer.DID(),
		Capacity:             r.Capacity,
		Revoked:              r.RevokedCount(),
		Name:                 r.Name,
		Description:          r.Description,
		StatusListCredential: r.StatusListCredentialID(),
		Version:              r.Version,
		CreatedAt:            formatTime(r.CreatedAt),
		UpdatedAt:            formatTime(r.UpdatedAt),
	}
}

// VerificationResult is the outcome of checking one anchored credential.
type VerificationResult struct {
	Credential      domain.Address
	AddressVerified bool
	IssuerMatches   bool
	Revoked         bool
	StatusChecked   bool
	NotYetValid     bool
	Expired         bool
	CheckedAt       time.Time
}

// Valid reports whether every check passed.
func (v VerificationResult) Valid() bool {
	return v.AddressVerified && v.IssuerMatches && !v.Revoked && !v.NotYetValid && !v.Expired
}

type VerificationCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

type VerificationDocument struct {
	ID        string              `json:"id"`
	Valid     bool                `json:"valid"`
	Checks    []VerificationCheck `json:"checks"`
	CheckedAt string              `json:"checkedAt"`
}

func NewVerificationDocument(v VerificationResult) VerificationDocument {
	checks := []VerificationCheck{
		{Name: "address", Passed: v.AddressVerified},
		{Name: "issuer", Passed: v.IssuerMatches},
		{Name: "validFrom", Passed: !v.NotYetValid},
		{Name: "validUntil", Passed: !v.Expired},
	}
	if v.StatusChecked {
		checks = append(checks, VerificationCheck{Name: "revocation", Passed: !v.Revoked})
	}
	return VerificationDocument{
		ID:        v.Credential.DID(),
		Valid:     v.Valid(),
		Checks:    checks,
		CheckedAt: formatTime(v.CheckedAt),
	}
}
