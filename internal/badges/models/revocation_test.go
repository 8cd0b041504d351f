package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openbadges/internal/ledger"
)

func sampleList(capacity uint32) RevocationListRecord {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return RevocationListRecord{
		Address:     addr("list"),
		Authority:   addr("authority"),
		Issuer:      addr("issuer"),
		Nonce:       254,
		ListID:      "spring",
		Capacity:    capacity,
		Name:        "Spring cohort",
		Description: "Revocations for the spring cohort",
		Bits:        NewStatusBits(capacity),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestNewStatusBitsRoundsUp(t *testing.T) {
	assert.Len(t, NewStatusBits(1), 1)
	assert.Len(t, NewStatusBits(8), 1)
	assert.Len(t, NewStatusBits(9), 2)
}

func TestRevocationListApply(t *testing.T) {
	list := sampleList(10)

	t.Run("revoke then reactivate", func(t *testing.T) {
		next, err := list.Apply(StatusChange{Revoke: []uint32{0, 3, 9}})
		require.NoError(t, err)
		assert.Equal(t, []byte{0b1001_0000, 0b0100_0000}, next.Bits)
		assert.Equal(t, 3, next.RevokedCount())

		revoked, err := next.IsRevoked(3)
		require.NoError(t, err)
		assert.True(t, revoked)

		next, err = next.Apply(StatusChange{Reactivate: []uint32{3}})
		require.NoError(t, err)
		revoked, err = next.IsRevoked(3)
		require.NoError(t, err)
		assert.False(t, revoked)
		assert.Equal(t, 2, next.RevokedCount())
	})

	t.Run("reactivation wins when both name an index", func(t *testing.T) {
		next, err := list.Apply(StatusChange{Revoke: []uint32{5}, Reactivate: []uint32{5}})
		require.NoError(t, err)
		revoked, err := next.IsRevoked(5)
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("out of range fails the whole change", func(t *testing.T) {
		next, err := list.Apply(StatusChange{Revoke: []uint32{1, 10}})
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
		assert.Equal(t, 0, next.RevokedCount())
		assert.Equal(t, 0, list.RevokedCount(), "receiver must be untouched")
	})

	t.Run("is revoked rejects out of range", func(t *testing.T) {
		_, err := list.IsRevoked(10)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	})
}

func TestRevocationListAccountRoundTrip(t *testing.T) {
	list, err := sampleList(16).Apply(StatusChange{Revoke: []uint32{7}})
	require.NoError(t, err)

	acct, err := list.ToAccount()
	require.NoError(t, err)
	assert.Equal(t, ledger.KindRevocationList, acct.Kind)
	assert.Equal(t, list.Issuer, acct.Issuer)

	back, err := RevocationListFromAccount(acct)
	require.NoError(t, err)
	assert.Equal(t, list.Authority, back.Authority)
	assert.Equal(t, list.Bits, back.Bits)
	assert.Equal(t, statusListVersion, back.Version)

	_, err = CredentialFromAccount(acct)
	assert.ErrorIs(t, err, ErrWrongKind)

	acct.Data = json.RawMessage(`{"capacity":16,"status_bits":"AA=="}`)
	_, err = RevocationListFromAccount(acct)
	assert.Error(t, err, "one status byte cannot hold sixteen entries")
}

func TestStatusListCredential(t *testing.T) {
	list, err := sampleList(64).Apply(StatusChange{Revoke: []uint32{2, 63}})
	require.NoError(t, err)

	vc, err := NewStatusListCredential(list)
	require.NoError(t, err)
	assert.Equal(t, list.Authority.DID()+"/status-lists/spring", vc.ID)
	assert.Equal(t, "StatusList2021", vc.CredentialSubject.Type)

	bits, err := DecodeStatusList(vc.CredentialSubject.EncodedList)
	require.NoError(t, err)
	assert.Equal(t, list.Bits, bits)

	list.StatusListURL = "https://badges.example.edu/status/spring"
	assert.Equal(t, list.StatusListURL, list.StatusListCredentialID())
}

func TestAchievementCredentialStatus(t *testing.T) {
	rec := CredentialRecord{
		Address:   addr("cred"),
		Issuer:    addr("issuer"),
		Recipient: addr("recipient"),
		IssuedAt:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		ValidFrom: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Status:    &StatusEntry{List: addr("list"), Index: 42, StatusListCredential: "https://example.edu/sl/1"},
	}

	vc := NewAchievementCredential(rec)
	require.NotNil(t, vc.CredentialStatus)
	assert.Equal(t, rec.Address.DID()+"#credential-status-42", vc.CredentialStatus.ID)
	assert.Equal(t, "42", vc.CredentialStatus.StatusListIndex)
	assert.Equal(t, "https://example.edu/sl/1", vc.CredentialStatus.StatusListCredential)

	acct, err := rec.ToAccount()
	require.NoError(t, err)
	back, err := CredentialFromAccount(acct)
	require.NoError(t, err)
	assert.Equal(t, rec.Status, back.Status)

	rec.Status = nil
	assert.Nil(t, NewAchievementCredential(rec).CredentialStatus)
}

func TestVerificationDocument(t *testing.T) {
	v := VerificationResult{
		Credential:      addr("cred"),
		AddressVerified: true,
		IssuerMatches:   true,
		StatusChecked:   true,
		Revoked:         true,
		CheckedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	assert.False(t, v.Valid())

	doc := NewVerificationDocument(v)
	assert.False(t, doc.Valid)
	require.Len(t, doc.Checks, 5)
	assert.Equal(t, VerificationCheck{Name: "revocation", Passed: false}, doc.Checks[4])

	v.Revoked = false
	v.StatusChecked = false
	assert.True(t, v.Valid())
	assert.Len(t, NewVerificationDocument(v).Checks, 4)
}
