// Package address parses and derives the 32-byte identities used across the sale.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

const (
	// KindReferral seeds referral channel addresses.
	KindReferral = "referral"
	// KindTimeLock seeds timelock grant addresses.
	KindTimeLock = "timelock"
	// KindVault seeds the escrow vault address.
	KindVault = "vault"
	// KindCampaign seeds the controller address.
	KindCampaign = "campaign"
)

var errEmpty = errors.New("address is empty")

// Parse decodes a base58 public key.
func Parse(s string) (solana.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return solana.PublicKey{}, errEmpty
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid base58 address %q: %w", s, err)
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("invalid address %q: expected %d bytes, got %d", s, solana.PublicKeyLength, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) solana.PublicKey {
	pk, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// Derive returns the program-derived address for (kind, owner, nonce) under
// program. Derived addresses are off-curve so they never collide with a
// signing key.
func Derive(program solana.PublicKey, kind string, owner solana.PublicKey, nonce uint64) (solana.PublicKey, error) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], nonce)
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte(kind), owner[:], n[:]}, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive %s address: %w", kind, err)
	}
	return pda, nil
}

// New returns a fresh random public key.
func New() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}
