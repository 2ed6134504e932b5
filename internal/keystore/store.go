package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrKeyInactive      = errors.New("key is not active")
	ErrKeyExists        = errors.New("key already exists")
	ErrInvalidStatus    = errors.New("invalid key status")
	ErrUnsupportedKey   = errors.New("unsupported key")
	ErrUnknownAlgorithm = errors.New("unknown key algorithm")
)

// KeyAlgorithm identifies the key type and size of a custodian key.
type KeyAlgorithm int

const (
	AlgorithmRSA2048 KeyAlgorithm = iota + 1
	AlgorithmRSA3072
	AlgorithmRSA4096
	AlgorithmECDSAP256
	AlgorithmECDSAP384
	AlgorithmECDSAP521
)

var algorithmNames = map[KeyAlgorithm]string{
	AlgorithmRSA2048:   "RSA_2048",
	AlgorithmRSA3072:   "RSA_3072",
	AlgorithmRSA4096:   "RSA_4096",
	AlgorithmECDSAP256: "ECDSA_P256",
	AlgorithmECDSAP384: "ECDSA_P384",
	AlgorithmECDSAP521: "ECDSA_P521",
}

func (a KeyAlgorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsRSA reports whether keys of this algorithm support decryption.
func (a KeyAlgorithm) IsRSA() bool {
	return a >= AlgorithmRSA2048 && a <= AlgorithmRSA4096
}

// RSABits returns the modulus size for RSA algorithms and 0 otherwise.
func (a KeyAlgorithm) RSABits() int {
	switch a {
	case AlgorithmRSA2048:
		return 2048
	case AlgorithmRSA3072:
		return 3072
	case AlgorithmRSA4096:
		return 4096
	default:
		return 0
	}
}

// Curve returns the curve for ECDSA algorithms and nil otherwise.
func (a KeyAlgorithm) Curve() elliptic.Curve {
	switch a {
	case AlgorithmECDSAP256:
		return elliptic.P256()
	case AlgorithmECDSAP384:
		return elliptic.P384()
	case AlgorithmECDSAP521:
		return elliptic.P521()
	default:
		return nil
	}
}

// ParseAlgorithm accepts a name as printed by String, case-insensitively.
func ParseAlgorithm(name string) (KeyAlgorithm, error) {
	for alg, n := range algorithmNames {
		if strings.EqualFold(n, name) {
			return alg, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// AlgorithmOf classifies an existing private key.
func AlgorithmOf(key crypto.Signer) (KeyAlgorithm, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		switch k.N.BitLen() {
		case 2048:
			return AlgorithmRSA2048, nil
		case 3072:
			return AlgorithmRSA3072, nil
		case 4096:
			return AlgorithmRSA4096, nil
		}
		return 0, fmt.Errorf("%w: rsa-%d", ErrUnsupportedKey, k.N.BitLen())
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return AlgorithmECDSAP256, nil
		case elliptic.P384():
			return AlgorithmECDSAP384, nil
		case elliptic.P521():
			return AlgorithmECDSAP521, nil
		}
		return 0, fmt.Errorf("%w: ecdsa %s", ErrUnsupportedKey, k.Curve.Params().Name)
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

// KeyStatus represents the lifecycle state of a key.
type KeyStatus int

const (
	StatusActive KeyStatus = iota + 1
	StatusDeactivated
)

func (s KeyStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusDeactivated:
		return "DEACTIVATED"
	default:
		return "UNKNOWN"
	}
}

// KeyEntry holds a custodian key and its metadata. ID is the keyless key
// id of the certificate the key serves.
type KeyEntry struct {
	ID         string
	Algorithm  KeyAlgorithm
	Status     KeyStatus
	PrivateKey crypto.Signer
	CreatedAt  time.Time
	Labels     map[string]string
}

// NewEntry builds an active entry for key, classifying its algorithm.
func NewEntry(id string, key crypto.Signer, labels map[string]string) (*KeyEntry, error) {
	alg, err := AlgorithmOf(key)
	if err != nil {
		return nil, err
	}
	return &KeyEntry{
		ID:         id,
		Algorithm:  alg,
		Status:     StatusActive,
		PrivateKey: key,
		CreatedAt:  time.Now().UTC(),
		Labels:     labels,
	}, nil
}

// Store defines the key storage interface.
type Store interface {
	Put(entry *KeyEntry) error
	Get(id string) (*KeyEntry, error)
	List(filter KeyStatus) ([]*KeyEntry, error)
	UpdateStatus(id string, status KeyStatus) error
	Delete(id string) error
}
