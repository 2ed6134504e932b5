package asymcipher

import "crypto/subtle"

// pkcs1MinOverhead is 0x00 || 0x02 || PS (at least 8 bytes) || 0x00.
const pkcs1MinOverhead = 11

// unpadPKCS1v15 removes RSAES-PKCS1-v1_5 padding from em and writes the
// recovered message into out, which must be exactly the expected message
// length. It returns 1 when em is well formed and carries a message of
// len(out) bytes, 0 otherwise. On failure out is left untouched.
//
// No branch or memory access outside the bounds checks below depends on
// the content of em.
func unpadPKCS1v15(out, em []byte) int {
	outLen, emLen := len(out), len(em)
	if emLen < outLen+pkcs1MinOverhead {
		return 0
	}

	valid := subtle.ConstantTimeByteEq(em[0], 0x00)
	valid &= subtle.ConstantTimeByteEq(em[1], 0x02)

	looking, found, sep := 1, 0, 0
	for i := 2; i < emLen; i++ {
		isZero := subtle.ConstantTimeByteEq(em[i], 0x00)
		hit := looking & isZero
		sep = subtle.ConstantTimeSelect(hit, i, sep)
		found |= hit
		looking &^= isZero
	}

	msgIdx := sep + 1
	msgLen := emLen - msgIdx

	// sep < 10 means fewer than 8 padding bytes.
	psTooShort := subtle.ConstantTimeLessOrEq(sep, 9)

	valid &= found
	valid &= psTooShort ^ 1
	valid &= subtle.ConstantTimeEq(int32(msgLen), int32(outLen))

	read := subtle.ConstantTimeSelect(valid, msgIdx, emLen-outLen)
	subtle.ConstantTimeCopy(valid, out, em[read:read+outLen])
	return valid
}
