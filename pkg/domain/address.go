package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	dErrors "openbadges/pkg/domain-errors"
)

// AddressLength is the size of a ledger address and of a public identity key.
const AddressLength = 32

// maxEncodedAddressLength bounds the base58 text form before decoding.
const maxEncodedAddressLength = 44

// Address is a 32-byte ledger address or public identity. The text form is
// base58 so it round-trips with wallet and explorer tooling.
//
// Invariant: values obtained from ParseAddress are exactly 32 bytes and never
// the zero address.
type Address [AddressLength]byte

// ParseAddress parses a base58 address at a trust boundary.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, dErrors.New(dErrors.CodeValidation, "address is required")
	}
	if len(s) > maxEncodedAddressLength {
		return Address{}, dErrors.New(dErrors.CodeValidation, "address is too long")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, dErrors.New(dErrors.CodeValidation, "address is not valid base58")
	}
	if len(raw) != AddressLength {
		return Address{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("address must decode to %d bytes", AddressLength))
	}
	var a Address
	copy(a[:], raw)
	if a.IsZero() {
		return Address{}, dErrors.New(dErrors.CodeValidation, "address must not be the zero address")
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies a 32-byte slice into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns the raw address as a seed-ready slice.
func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// DID returns the did:sol identifier for a public identity.
func (a Address) DID() string {
	return "did:sol:" + a.String()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores the base58 form in SQL columns.
func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan reads the base58 form from SQL columns.
func (a *Address) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	default:
		return fmt.Errorf("unsupported address source %T", src)
	}
}
