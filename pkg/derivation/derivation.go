// Package derivation computes deterministic ledger addresses from ordered
// seed components.
//
// An address is found by searching a one-byte nonce from 255 down to 0 and
// asking a CandidateFunc for the address of seeds‖nonce. The first candidate
// that the ledger considers valid wins and the nonce is returned with it;
// entity-creation calls must present the same nonce.
//
// Seed order is part of the contract. Permuting seeds yields a different
// address, so every entity kind has exactly one canonical order:
//
//	issuer:      ["issuer", authority]
//	achievement: ["achievement", issuerAddress, name]
//	credential:  ["credential", achievementAddress, issuerAddress, recipient]
//
// The package performs no I/O and holds no mutable state; an Engine is safe
// for concurrent use.
package derivation

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"openbadges/pkg/domain"
)

const (
	// MaxSeedLength is the largest accepted single seed in bytes.
	MaxSeedLength = 32
	// MaxSeeds is the number of seeds a derivation may use, nonce included.
	MaxSeeds = 16

	pdaMarker = "ProgramDerivedAddress"
)

// Seed prefixes for each entity kind.
const (
	IssuerSeed      = "issuer"
	AchievementSeed = "achievement"
	CredentialSeed  = "credential"

	RevocationListSeed = "revocation_list"
)

var (
	// ErrSeedTooLarge reports a seed over MaxSeedLength or too many seeds.
	ErrSeedTooLarge = errors.New("seed exceeds maximum length")
	// ErrNoValidAddress reports that no nonce produced a valid address.
	ErrNoValidAddress = errors.New("no valid address for seeds")
	// ErrInvalidCandidate is returned by a CandidateFunc when seeds‖nonce does
	// not produce a usable address. The search moves to the next nonce.
	ErrInvalidCandidate = errors.New("candidate address is not valid")
)

// CandidateFunc returns the ledger address for seeds plus a nonce. It must
// return ErrInvalidCandidate when the ledger would reject the address.
type CandidateFunc func(programID domain.Address, seeds [][]byte, nonce byte) (domain.Address, error)

// Derived is an address with the nonce that produced it.
type Derived struct {
	Address domain.Address
	Nonce   byte
}

// Engine derives addresses for a single program.
type Engine struct {
	programID domain.Address
	candidate CandidateFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithCandidateFunc swaps the address function, for example to delegate to a
// ledger client's own implementation.
func WithCandidateFunc(fn CandidateFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.candidate = fn
		}
	}
}

// New constructs an Engine bound to programID.
func New(programID domain.Address, opts ...Option) *Engine {
	e := &Engine{
		programID: programID,
		candidate: ProgramAddress,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProgramID returns the program the engine derives addresses for.
func (e *Engine) ProgramID() domain.Address {
	return e.programID
}

// Derive searches for the first valid address for seeds.
func (e *Engine) Derive(seeds ...[]byte) (Derived, error) {
	if err := validateSeeds(seeds); err != nil {
		return Derived{}, err
	}
	for n := 255; n >= 0; n-- {
		nonce := byte(n)
		addr, err := e.candidate(e.programID, seeds, nonce)
		if errors.Is(err, ErrInvalidCandidate) {
			continue
		}
		if err != nil {
			return Derived{}, fmt.Errorf("derive candidate with nonce %d: %w", nonce, err)
		}
		return Derived{Address: addr, Nonce: nonce}, nil
	}
	return Derived{}, ErrNoValidAddress
}

// Issuer derives the issuer profile address for an authority.
func (e *Engine) Issuer(authority domain.Address) (Derived, error) {
	return e.Derive([]byte(IssuerSeed), authority.Bytes())
}

// RevocationList derives the status list an authority manages under listID.
func (e *Engine) RevocationList(authority domain.Address, listID string) (Derived, error) {
	return e.Derive([]byte(RevocationListSeed), authority.Bytes(), []byte(listID))
}

// Achievement derives the address of an achievement owned by issuer.
func (e *Engine) Achievement(issuer domain.Address, name string) (Derived, error) {
	return e.Derive([]byte(AchievementSeed), issuer.Bytes(), []byte(name))
}

// Credential derives the address of the credential for a recipient.
func (e *Engine) Credential(achievement, issuer, recipient domain.Address) (Derived, error) {
	return e.Derive([]byte(CredentialSeed), achievement.Bytes(), issuer.Bytes(), recipient.Bytes())
}

// Verify reports whether d is the canonical derivation of seeds.
func (e *Engine) Verify(d Derived, seeds ...[]byte) (bool, error) {
	want, err := e.Derive(seeds...)
	if err != nil {
		return false, err
	}
	return want == d, nil
}

func validateSeeds(seeds [][]byte) error {
	if len(seeds) >= MaxSeeds {
		return fmt.Errorf("%w: %d seeds, at most %d allowed", ErrSeedTooLarge, len(seeds), MaxSeeds-1)
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d is %d bytes, at most %d allowed", ErrSeedTooLarge, i, len(s), MaxSeedLength)
		}
	}
	return nil
}

// ProgramAddress is the default CandidateFunc. It hashes
// seeds‖nonce‖programID‖"ProgramDerivedAddress" with SHA-256 and accepts the
// digest only when it is not an ed25519 curve point, so no private key can
// exist for the address.
func ProgramAddress(programID domain.Address, seeds [][]byte, nonce byte) (domain.Address, error) {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write([]byte{nonce})
	h.Write(programID.Bytes())
	h.Write([]byte(pdaMarker))

	var addr domain.Address
	copy(addr[:], h.Sum(nil))
	if IsOnCurve(addr) {
		return domain.Address{}, ErrInvalidCandidate
	}
	return addr, nil
}

// IsOnCurve reports whether addr decodes to an ed25519 point.
func IsOnCurve(addr domain.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(addr.Bytes())
	return err == nil
}
