package authority

import (
	"fmt"

	"card-escrow-ledger/internal/core/domain"
)

// Kind distinguishes how a Capability proves control of an account.
type Kind uint8

const (
	KindSigner Kind = iota + 1
	KindDerived
)

func (k Kind) String() string {
	switch k {
	case KindSigner:
		return "signer"
	case KindDerived:
		return "derived"
	default:
		return "invalid"
	}
}

// Capability is presented to the transfer service to move funds out of an
// account. Its fields are unexported: a derived capability can only be minted
// by a Scheme, and its seeds never leave this package.
type Capability struct {
	kind      Kind
	signer    domain.Identity
	seeds     [][]byte
	programID domain.Identity
	address   domain.Identity
}

// Signer returns a capability for an identity whose request signature has
// already been verified by the transport.
func Signer(id domain.Identity) Capability {
	return Capability{kind: KindSigner, signer: id}
}

func (c Capability) Kind() Kind {
	return c.kind
}

// Authorizes checks that c controls an account whose authority is expected.
// A derived capability is only honoured by a verifier trusting the program
// that minted it, and is re-derived under that program id.
func (c Capability) Authorizes(programID, expected domain.Identity) error {
	switch c.kind {
	case KindSigner:
		if c.signer != expected {
			return domain.ErrAuthorityMismatch
		}
		return nil
	case KindDerived:
		if c.programID != programID {
			return domain.ErrAuthorityMismatch
		}
		addr, err := CreateAddress(c.seeds, programID)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrAuthorityMismatch, err)
		}
		if addr != expected {
			return domain.ErrAuthorityMismatch
		}
		return nil
	default:
		return domain.ErrAuthorityMismatch
	}
}

// String never includes derivation seeds.
func (c Capability) String() string {
	switch c.kind {
	case KindSigner:
		return "signer(" + c.signer.String() + ")"
	case KindDerived:
		return "derived(" + c.address.String() + ")"
	default:
		return "invalid"
	}
}
