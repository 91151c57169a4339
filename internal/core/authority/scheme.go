// Package authority derives keyless escrow authorities for cards.
//
// A derived address is the blake2b-256 digest of a seed list, a bump byte, the
// engine's program id and a fixed marker. The bump is chosen so the digest is
// not a valid ed25519 point, which means no private key exists for it. Only
// code holding the seeds can prove control of such an address.
package authority

import (
	"errors"
	"fmt"

	"card-escrow-ledger/internal/core/domain"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"
)

const (
	MaxSeeds   = 16
	MaxSeedLen = 32

	derivationMarker = "CardEscrowDerivedAddress"
)

// Seed namespaces.
var (
	cardNamespace   = []byte("card")
	escrowNamespace = []byte("escrow")
)

var (
	ErrMaxSeedsExceeded = errors.New("too many derivation seeds")
	ErrSeedTooLong      = errors.New("derivation seed is too long")
	ErrOnCurve          = errors.New("derived address is on the ed25519 curve")
	ErrNoViableBump     = errors.New("no viable bump seed")
)

// CreateAddress hashes seeds into an off-curve address. The last seed is
// normally the bump.
func CreateAddress(seeds [][]byte, programID domain.Identity) (domain.Identity, error) {
	var addr domain.Identity
	if len(seeds) > MaxSeeds {
		return addr, ErrMaxSeedsExceeded
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return addr, fmt.Errorf("init hash: %w", err)
	}
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return addr, ErrSeedTooLong
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(derivationMarker))
	copy(addr[:], h.Sum(nil))

	if IsOnCurve(addr) {
		return domain.Identity{}, ErrOnCurve
	}
	return addr, nil
}

// FindAddress searches bumps from 255 down and returns the first off-curve
// address together with the bump that produced it.
func FindAddress(seeds [][]byte, programID domain.Identity) (domain.Identity, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return domain.Identity{}, 0, err
		}
	}
	return domain.Identity{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether id decodes to an ed25519 point.
func IsOnCurve(id domain.Identity) bool {
	_, err := new(edwards25519.Point).SetBytes(id[:])
	return err == nil
}

// Scheme binds derivations to one engine deployment.
type Scheme struct {
	programID domain.Identity
}

// NewScheme creates a Scheme for programID.
func NewScheme(programID domain.Identity) *Scheme {
	return &Scheme{programID: programID}
}

// ProgramID returns the deployment identity mixed into every derivation.
func (s *Scheme) ProgramID() domain.Identity {
	return s.programID
}

func cardSeeds(owner domain.Identity, cardID string) [][]byte {
	return [][]byte{cardNamespace, owner[:], []byte(cardID)}
}

func escrowSeeds(card domain.Identity) [][]byte {
	return [][]byte{escrowNamespace, card[:]}
}

// DeriveCard returns the card address and bump for (owner, cardID).
func (s *Scheme) DeriveCard(owner domain.Identity, cardID string) (domain.Identity, uint8, error) {
	if err := domain.ValidateCardID(cardID); err != nil {
		return domain.Identity{}, 0, err
	}
	return FindAddress(cardSeeds(owner, cardID), s.programID)
}

// DeriveEscrow returns the escrow token account address for a card address.
func (s *Scheme) DeriveEscrow(card domain.Identity) (domain.Identity, error) {
	addr, _, err := FindAddress(escrowSeeds(card), s.programID)
	return addr, err
}

// CardCapability mints the capability that authorizes transfers out of the
// card's escrow account.
func (s *Scheme) CardCapability(card *domain.Card) Capability {
	seeds := cardSeeds(card.Owner, card.ID)
	seeds = append(seeds, []byte{card.Bump})
	return Capability{kind: KindDerived, seeds: seeds, programID: s.programID, address: card.Address}
}
