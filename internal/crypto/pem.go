package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	ErrNoPEMKey  = errors.New("no private key PEM block")
	ErrNoPEMCert = errors.New("no certificate PEM block")
)

// ParsePrivateKeyPEM returns the first private key in data. PKCS8,
// PKCS1 and SEC 1 blocks are accepted.
func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrNoPEMKey
		}
		switch block.Type {
		case "PRIVATE KEY":
			return UnmarshalPrivateKey(block.Bytes)
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse pkcs1 key: %w", err)
			}
			return k, nil
		case "EC PRIVATE KEY":
			k, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse ec key: %w", err)
			}
			return k, nil
		}
	}
}

// ParseCertificatesPEM returns the DER of every certificate in data, in
// order.
func ParseCertificatesPEM(data []byte) ([][]byte, error) {
	var chain [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			chain = append(chain, block.Bytes)
		}
	}
	if len(chain) == 0 {
		return nil, ErrNoPEMCert
	}
	return chain, nil
}

// EncodePublicKeyPEM encodes pub as a PUBLIC KEY block.
func EncodePublicKeyPEM(pub crypto.PublicKey) ([]byte, error) {
	der, err := MarshalPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// SamePublicKey reports whether a and b are the same RSA or ECDSA key.
func SamePublicKey(a, b crypto.PublicKey) bool {
	switch k := a.(type) {
	case *rsa.PublicKey:
		return k.Equal(b)
	case *ecdsa.PublicKey:
		return k.Equal(b)
	default:
		return false
	}
}
