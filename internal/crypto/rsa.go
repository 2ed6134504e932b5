package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"math/big"
)

var (
	ErrCiphertextRange = errors.New("ciphertext out of range")
	ErrDecryptFault    = errors.New("rsa private-key operation failed verification")
)

// RawDecrypt applies the RSA private-key operation to ciphertext and
// returns the encoded message, padding included, left-padded to the
// modulus length.
//
// The ciphertext is blinded with a fresh random factor before the
// exponentiation, so its timing does not depend on the caller's input.
// The result is checked by re-encryption before it is returned.
func RawDecrypt(key *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	k := key.Size()
	if len(ciphertext) > k {
		return nil, ErrCiphertextRange
	}
	c := new(big.Int).SetBytes(ciphertext)
	if c.Cmp(key.N) >= 0 {
		return nil, ErrCiphertextRange
	}

	r, rInv, err := blindingFactor(key.N)
	if err != nil {
		return nil, err
	}
	e := big.NewInt(int64(key.E))

	// cb = c * r^e mod N
	cb := new(big.Int).Exp(r, e, key.N)
	cb.Mul(cb, c).Mod(cb, key.N)

	m := privateExp(key, cb)
	m.Mul(m, rInv).Mod(m, key.N)

	if new(big.Int).Exp(m, e, key.N).Cmp(c) != 0 {
		return nil, ErrDecryptFault
	}
	return m.FillBytes(make([]byte, k)), nil
}

// blindingFactor returns a random r in [1, n) invertible mod n, and its
// inverse.
func blindingFactor(n *big.Int) (r, rInv *big.Int, err error) {
	for {
		r, err = rand.Int(rand.Reader, n)
		if err != nil {
			return nil, nil, err
		}
		if r.Sign() == 0 {
			continue
		}
		if rInv = new(big.Int).ModInverse(r, n); rInv != nil {
			return r, rInv, nil
		}
	}
}

// privateExp computes c^d mod N, with the CRT when the key carries its
// precomputed values for two primes.
func privateExp(key *rsa.PrivateKey, c *big.Int) *big.Int {
	pc := key.Precomputed
	if len(key.Primes) != 2 || pc.Dp == nil || pc.Dq == nil || pc.Qinv == nil {
		return new(big.Int).Exp(c, key.D, key.N)
	}
	p, q := key.Primes[0], key.Primes[1]
	m1 := new(big.Int).Exp(c, pc.Dp, p)
	m2 := new(big.Int).Exp(c, pc.Dq, q)

	// m = m2 + q * (qInv * (m1 - m2) mod p)
	h := m1.Sub(m1, m2)
	h.Mul(h, pc.Qinv).Mod(h, p)
	h.Mul(h, q).Add(h, m2)
	return h
}
