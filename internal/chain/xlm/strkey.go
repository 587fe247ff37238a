package xlm

import (
	"crypto/ed25519"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/strkey"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// ValidateAccountID checks that id is a well-formed G... account id.
func ValidateAccountID(id string) error {
	if !IsValidAccountID(id) {
		return coreerr.WithDetails(coreerr.ErrInvalidAddress, map[string]string{"chain": "xlm", "address": id})
	}
	return nil
}

// IsValidAccountID reports whether id is a well-formed account id.
func IsValidAccountID(id string) bool {
	return strkey.IsValidEd25519PublicKey(id)
}

// EncodeSeed renders an ed25519 seed as an S... secret seed.
func EncodeSeed(seed []byte) string {
	return strkey.MustEncode(strkey.VersionByteSeed, seed)
}

// DecodeSeed parses an S... secret seed into its 32-byte ed25519 seed.
func DecodeSeed(s string) ([]byte, error) {
	payload, err := strkey.Decode(strkey.VersionByteSeed, s)
	if err != nil || len(payload) != ed25519.SeedSize {
		return nil, coreerr.Wrap(coreerr.ErrInvalidInput, "invalid secret seed")
	}
	return payload, nil
}

// FullKeypair returns the signing keypair of a 32-byte ed25519 seed.
func FullKeypair(seed []byte) (*keypair.Full, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, coreerr.ErrKeyMismatch
	}
	var raw [32]byte
	copy(raw[:], seed)
	defer clear(raw[:])
	return keypair.FromRawSeed(raw)
}
