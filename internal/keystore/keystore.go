// Package keystore keeps wallet secrets in an age-encrypted vault file and
// unlocks per-chain signing keys with the second password.
//
// The vault holds a BIP39 mnemonic and, optionally, a Stellar secret seed.
// Ethereum and Bitcoin keys are derived with BIP32 at m/44'/coin'/0'/0/0.
// Stellar uses the imported seed, or SEP-0005 derivation when none is set.
// Derived keys live in mlocked memory until the signing.KeyPair is zeroed.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/chain/xlm"
	"github.com/mrz1836/coincore/internal/signing"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

const (
	vaultFilePermissions = 0o600
	vaultDirPermissions  = 0o700
)

// ErrVaultExists indicates Create would overwrite an existing vault.
var ErrVaultExists = coreerr.New("VAULT_EXISTS", "a keystore already exists at this path")

// Vault is the decrypted vault document.
type Vault struct {
	Mnemonic string `yaml:"mnemonic"`
	// Passphrase is the optional BIP39 passphrase.
	Passphrase string `yaml:"passphrase,omitempty"`
	// StellarSeed is an imported S... secret seed.
	StellarSeed string    `yaml:"stellar_seed,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// Validate checks the mnemonic and the optional Stellar seed.
func (v Vault) Validate() error {
	if !bip39.IsMnemonicValid(normalizeMnemonic(v.Mnemonic)) {
		return coreerr.ErrInvalidMnemonic
	}
	if v.StellarSeed != "" {
		seed, err := xlm.DecodeSeed(v.StellarSeed)
		if err != nil {
			return coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"field": "stellar_seed"})
		}
		wipe(seed)
	}
	return nil
}

// GenerateMnemonic creates a new 12 or 24 word BIP39 mnemonic.
func GenerateMnemonic(words int) (string, error) {
	var bits int
	switch words {
	case 12:
		bits = 128
	case 24:
		bits = 256
	default:
		return "", coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{
			"words":   fmt.Sprint(words),
			"allowed": "12, 24",
		})
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("generating entropy: %w", err)
	}
	defer wipe(entropy)
	return bip39.NewMnemonic(entropy)
}

func normalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(strings.ToLower(m)), " ")
}

// Create encrypts vault with password and writes it to path. An existing
// file is never overwritten.
func Create(path string, vault Vault, password string) error {
	return create(path, vault, password, defaultWorkFactor)
}

func create(path string, vault Vault, password string, workFactor int) error {
	if password == "" {
		return coreerr.WithSuggestion(
			coreerr.Wrap(coreerr.ErrInvalidInput, "empty keystore password"),
			"Choose a second password to protect the keystore",
		)
	}
	if err := vault.Validate(); err != nil {
		return err
	}
	vault.Mnemonic = normalizeMnemonic(vault.Mnemonic)
	if vault.CreatedAt.IsZero() {
		vault.CreatedAt = time.Now().UTC()
	}

	plaintext, err := yaml.Marshal(vault)
	if err != nil {
		return fmt.Errorf("encoding vault: %w", err)
	}
	defer wipe(plaintext)

	ciphertext, err := seal(plaintext, password, workFactor)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), vaultDirPermissions); err != nil {
		return fmt.Errorf("creating keystore directory: %w", err)
	}
	// #nosec G304 -- keystore path comes from configuration
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, vaultFilePermissions)
	if errors.Is(err, os.ErrExist) {
		return coreerr.WithDetails(ErrVaultExists, map[string]string{"path": path})
	}
	if err != nil {
		return fmt.Errorf("creating keystore file: %w", err)
	}
	if _, err := f.Write(ciphertext); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("writing keystore file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing keystore file: %w", err)
	}
	return f.Close()
}

// Store unlocks signing keys from a vault file. It implements
// signing.KeyPairProvider.
type Store struct {
	path       string
	ciphertext []byte
	btcParams  *chaincfg.Params
}

// Open reads the vault at path. btcParams selects the Bitcoin address
// network and defaults to mainnet.
func Open(path string, btcParams *chaincfg.Params) (*Store, error) {
	// #nosec G304 -- keystore path comes from configuration
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, coreerr.WithSuggestion(
			coreerr.WithDetails(coreerr.ErrNotFound, map[string]string{"keystore": path}),
			"Run 'coincore keystore init' to create one",
		)
	}
	if err != nil {
		return nil, fmt.Errorf("reading keystore: %w", err)
	}
	if btcParams == nil {
		btcParams = &chaincfg.MainNetParams
	}
	return &Store{path: path, ciphertext: data, btcParams: btcParams}, nil
}

// Path returns the vault file path.
func (s *Store) Path() string { return s.path }

// KeyPair decrypts the vault and derives the key of chainID. The caller
// owns the returned pair and must Zero it.
func (s *Store) KeyPair(ctx context.Context, chainID chain.ID, secondPassword string) (*signing.KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.ErrCancelled, "%v", err)
	}
	if !chainID.IsValid() {
		return nil, coreerr.WithDetails(coreerr.ErrNotSupported, map[string]string{"chain": string(chainID)})
	}

	vault, err := s.unseal(secondPassword)
	if err != nil {
		return nil, err
	}

	raw, err := s.derive(vault, chainID)
	if err != nil {
		return nil, err
	}
	id, err := accountID(chainID, raw, s.btcParams)
	if err != nil {
		wipe(raw)
		return nil, coreerr.Wrap(coreerr.ErrKeyMismatch, "%v", err)
	}

	secret, release := lockedCopy(raw)
	return signing.NewKeyPair(chainID, id, secret, release), nil
}

// Addresses returns the address of every supported chain.
func (s *Store) Addresses(ctx context.Context, secondPassword string) (map[chain.ID]string, error) {
	vault, err := s.unseal(secondPassword)
	if err != nil {
		return nil, err
	}
	out := make(map[chain.ID]string, 3)
	for _, id := range []chain.ID{chain.ETH, chain.BTC, chain.XLM} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := s.derive(vault, id)
		if err != nil {
			return nil, err
		}
		addr, err := accountID(id, raw, s.btcParams)
		wipe(raw)
		if err != nil {
			return nil, err
		}
		out[id] = addr
	}
	return out, nil
}

func (s *Store) unseal(password string) (Vault, error) {
	plaintext, err := open(s.ciphertext, password)
	if err != nil {
		return Vault{}, coreerr.WithSuggestion(err, "Check the second password")
	}
	defer wipe(plaintext)

	var v Vault
	if err := yaml.Unmarshal(plaintext, &v); err != nil {
		return Vault{}, coreerr.Wrap(coreerr.ErrDecryptionFailed, "keystore content is malformed")
	}
	return v, nil
}

// derive returns the raw signing secret of chainID.
func (s *Store) derive(v Vault, chainID chain.ID) ([]byte, error) {
	if chainID == chain.XLM && v.StellarSeed != "" {
		return xlm.DecodeSeed(v.StellarSeed)
	}

	seed, err := bip39.NewSeedWithErrorChecking(v.Mnemonic, v.Passphrase)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrInvalidMnemonic, "%v", err)
	}
	defer wipe(seed)

	if chainID == chain.XLM {
		raw, err := deriveEd25519(seed, DerivationPath(chainID))
		if err != nil {
			return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "%v", err)
		}
		return raw, nil
	}
	raw, err := deriveSecp256k1(seed, chainID.CoinType())
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "%v", err)
	}
	return raw, nil
}
