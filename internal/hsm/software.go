package hsm

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/glinharesb/keyless/internal/crypto"
	"github.com/glinharesb/keyless/internal/keystore"
	"github.com/glinharesb/keyless/internal/sigalg"
)

// SoftwareHSM is a software-only HSM implementation for development and testing.
// In production, this would be replaced by a hardware-backed provider.
type SoftwareHSM struct{}

func NewSoftwareHSM() *SoftwareHSM {
	return &SoftwareHSM{}
}

func (s *SoftwareHSM) GenerateKey(alg keystore.KeyAlgorithm) (gocrypto.Signer, error) {
	if bits := alg.RSABits(); bits > 0 {
		return crypto.GenerateRSAKey(bits)
	}
	if curve := alg.Curve(); curve != nil {
		return crypto.GenerateECDSAKey(curve)
	}
	return nil, fmt.Errorf("%w: %v", keystore.ErrUnknownAlgorithm, alg)
}

func (s *SoftwareHSM) Sign(key gocrypto.Signer, algorithm string, digest []byte) ([]byte, error) {
	_, opts, err := resolve(key.Public(), algorithm, digest)
	if err != nil {
		return nil, err
	}
	return key.Sign(rand.Reader, digest, opts)
}

func (s *SoftwareHSM) Verify(pub gocrypto.PublicKey, algorithm string, digest, signature []byte) bool {
	a, opts, err := resolve(pub, algorithm, digest)
	if err != nil {
		return false
	}
	switch a.Scheme {
	case sigalg.ECDSA:
		return ecdsa.VerifyASN1(pub.(*ecdsa.PublicKey), digest, signature)
	case sigalg.RSAPSS:
		return rsa.VerifyPSS(pub.(*rsa.PublicKey), a.Hash, digest, signature, opts.(*rsa.PSSOptions)) == nil
	default:
		return rsa.VerifyPKCS1v15(pub.(*rsa.PublicKey), a.Hash, digest, signature) == nil
	}
}

func (s *SoftwareHSM) Decrypt(key gocrypto.Signer, ciphertext []byte) ([]byte, error) {
	k, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrDecryptNotAllowed, key)
	}
	return crypto.RawDecrypt(k, ciphertext)
}

// resolve parses algorithm and checks it against pub and digest. The
// returned options are what the TLS stack uses for the same name.
func resolve(pub gocrypto.PublicKey, algorithm string, digest []byte) (sigalg.Algorithm, gocrypto.SignerOpts, error) {
	a, err := sigalg.Parse(algorithm)
	if err != nil {
		return sigalg.Algorithm{}, nil, err
	}
	if len(digest) != a.Hash.Size() {
		return sigalg.Algorithm{}, nil, fmt.Errorf("%w: %d bytes for %v", ErrDigestLength, len(digest), a.Hash)
	}

	switch k := pub.(type) {
	case *rsa.PublicKey:
		switch a.Scheme {
		case sigalg.RSAPSS:
			return a, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: a.Hash}, nil
		case sigalg.RSAPKCS1:
			return a, a.Hash, nil
		}
	case *ecdsa.PublicKey:
		if a.Scheme == sigalg.ECDSA && sigalg.CurveName(k.Curve) == a.Curve {
			return a, a.Hash, nil
		}
	}
	return sigalg.Algorithm{}, nil, fmt.Errorf("%w: %s for %T", ErrKeyMismatch, algorithm, pub)
}
