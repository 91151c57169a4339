package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// IdentityLen is the byte length of every ledger identity (owners, merchants,
// derived card addresses, token accounts).
const IdentityLen = 32

// Identity is a 32-byte ledger address, rendered as base58.
// Owner and merchant identities are ed25519 public keys; derived addresses are
// deliberately off-curve and have no private key.
type Identity [IdentityLen]byte

// ParseIdentity decodes a base58 identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if s == "" {
		return id, fmt.Errorf("empty identity")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("decode identity: %w", err)
	}
	if len(raw) != IdentityLen {
		return id, fmt.Errorf("identity must be %d bytes, got %d", IdentityLen, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustParseIdentity is ParseIdentity for constants and tests.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IdentityFromBytes copies b into an Identity.
func IdentityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != IdentityLen {
		return id, fmt.Errorf("identity must be %d bytes, got %d", IdentityLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id Identity) String() string {
	return base58.Encode(id[:])
}

// Bytes returns a copy of the raw identity bytes.
func (id Identity) Bytes() []byte {
	b := make([]byte, IdentityLen)
	copy(b, id[:])
	return b
}

// IsZero reports whether id is the all-zero identity.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
