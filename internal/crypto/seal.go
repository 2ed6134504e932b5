package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var ErrSealedTooShort = errors.New("sealed data too short")

const sealInfo = "keyless/keystore/v1:"

// Seal encrypts plaintext with AES-256-GCM under a key derived from root
// for label. label is also bound as additional data, so a sealed value
// only opens under the label it was sealed for.
// The result is [nonce | ciphertext | tag].
func Seal(root []byte, label string, plaintext []byte) ([]byte, error) {
	gcm, err := sealCipher(root, label)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, []byte(label)), nil
}

// Open reverses Seal.
func Open(root []byte, label string, sealed []byte) ([]byte, error) {
	gcm, err := sealCipher(root, label)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize+gcm.Overhead() {
		return nil, ErrSealedTooShort
	}
	nonce, ct := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("aes gcm open: %w", err)
	}
	return plaintext, nil
}

func sealCipher(root []byte, label string) (cipher.AEAD, error) {
	if len(root) == 0 {
		return nil, errors.New("empty seal key")
	}
	key, err := deriveKey(root, []byte(sealInfo+label), 32)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey derives length bytes from root with HKDF-SHA256, using info
// for domain separation.
func deriveKey(root, info []byte, length int) ([]byte, error) {
	if length <= 0 || length > 64 {
		return nil, fmt.Errorf("invalid derived key length: %d (must be 1-64)", length)
	}

	r := hkdf.New(sha256.New, root, nil, info)
	derived := make([]byte, length)
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, fmt.Errorf("hkdf derive: %w", err)
	}
	return derived, nil
}
