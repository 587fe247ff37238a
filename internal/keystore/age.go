package keystore

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// defaultWorkFactor is the scrypt log2(N) used for new vaults.
const defaultWorkFactor = 18

// seal encrypts plaintext to a password-based age recipient.
func seal(plaintext []byte, password string, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(workFactor)

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// open decrypts ciphertext. Any failure, a wrong password included, is
// reported as ErrDecryptionFailed.
func open(ciphertext []byte, password string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrDecryptionFailed, "%v", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrDecryptionFailed, "%v", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrDecryptionFailed, "reading decrypted data: %v", err)
	}
	return plaintext, nil
}
