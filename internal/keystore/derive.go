package keystore

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stellar/go-stellar-sdk/tools/stellar-hd-wallet/crypto/derivation"
	"github.com/tyler-smith/go-bip32"

	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/chain/xlm"
)

// DerivationPath returns the BIP44 path of the key used for a chain.
// Stellar follows SEP-0005, which stops at the hardened account level.
func DerivationPath(id chain.ID) string {
	if id == chain.XLM {
		return id.DerivationPath()
	}
	return id.DerivationPath() + "/0/0"
}

// deriveSecp256k1 walks m/44'/coin'/0'/0/0 and returns the 32-byte private key.
func deriveSecp256k1(seed []byte, coinType uint32) ([]byte, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}
	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + coinType,
		bip32.FirstHardenedChild,
		0,
		0,
	}
	for _, idx := range path {
		if key, err = key.NewChildKey(idx); err != nil {
			return nil, fmt.Errorf("deriving child %d: %w", idx, err)
		}
	}

	// Keys with leading zero bytes come back short.
	priv := make([]byte, btcec.PrivKeyBytesLen)
	copy(priv[len(priv)-len(key.Key):], key.Key)
	wipe(key.Key)
	return priv, nil
}

// deriveEd25519 walks a hardened SLIP-0010 path and returns the 32-byte
// ed25519 seed of the key at its end.
func deriveEd25519(seed []byte, path string) ([]byte, error) {
	key, err := derivation.DeriveForPath(path, seed)
	if err != nil {
		return nil, fmt.Errorf("deriving %s: %w", path, err)
	}
	out := make([]byte, len(key.Key))
	copy(out, key.Key)
	wipe(key.Key)
	wipe(key.ChainCode)
	return out, nil
}

// accountID returns the address controlled by secret on chain id.
func accountID(id chain.ID, secret []byte, btcParams *chaincfg.Params) (string, error) {
	switch id {
	case chain.ETH:
		key, err := crypto.ToECDSA(secret)
		if err != nil {
			return "", fmt.Errorf("parsing eth key: %w", err)
		}
		return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
	case chain.BTC:
		priv, pub := btcec.PrivKeyFromBytes(secret)
		defer priv.Zero()
		addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), btcParams)
		if err != nil {
			return "", fmt.Errorf("encoding btc address: %w", err)
		}
		return addr.EncodeAddress(), nil
	case chain.XLM:
		kp, err := xlm.FullKeypair(secret)
		if err != nil {
			return "", fmt.Errorf("parsing xlm seed: %w", err)
		}
		return kp.Address(), nil
	default:
		return "", fmt.Errorf("no address format for chain %q", id)
	}
}
