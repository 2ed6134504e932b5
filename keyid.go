package keyless

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/glinharesb/keyless/internal/cryptolib"
	"github.com/glinharesb/keyless/internal/diag"
)

var ErrMalformedCertificate = errors.New("keyless: malformed certificate")

// CertKeyID derives the key identifier of a DER certificate: the
// lowercase hex SHA-256 of the issuer Name DER followed by the serial
// number INTEGER DER. The identifier names the certificate's key at the
// custodian.
func CertKeyID(der []byte) (string, error) {
	issuer, serial, err := issuerAndSerial(der)
	if err != nil {
		return "", err
	}

	buf := make([]byte, 0, len(issuer)+len(serial))
	buf = append(buf, issuer...)
	buf = append(buf, serial...)

	var ch diag.Channel
	sum, err := cryptolib.New(nil).Digest(&ch, "SHA256", buf)
	if !diag.Check(nil, ch.Get(), "certificate key id") || err != nil {
		return "", fmt.Errorf("certificate key id: %w", err)
	}
	return hex.EncodeToString(sum), nil
}

// issuerAndSerial returns the complete TLVs of the serial number and the
// issuer from a certificate's TBSCertificate.
func issuerAndSerial(der []byte) (issuer, serial []byte, err error) {
	input := cryptobyte.String(der)

	var cert, tbs cryptobyte.String
	if !input.ReadASN1(&cert, asn1.SEQUENCE) || !input.Empty() {
		return nil, nil, fmt.Errorf("%w: certificate sequence", ErrMalformedCertificate)
	}
	if !cert.ReadASN1(&tbs, asn1.SEQUENCE) {
		return nil, nil, fmt.Errorf("%w: tbsCertificate", ErrMalformedCertificate)
	}
	if !tbs.SkipOptionalASN1(asn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, nil, fmt.Errorf("%w: version", ErrMalformedCertificate)
	}

	var serialTLV, issuerTLV cryptobyte.String
	if !tbs.ReadASN1Element(&serialTLV, asn1.INTEGER) {
		return nil, nil, fmt.Errorf("%w: serial number", ErrMalformedCertificate)
	}
	if !tbs.SkipASN1(asn1.SEQUENCE) {
		return nil, nil, fmt.Errorf("%w: signature algorithm", ErrMalformedCertificate)
	}
	if !tbs.ReadASN1Element(&issuerTLV, asn1.SEQUENCE) {
		return nil, nil, fmt.Errorf("%w: issuer", ErrMalformedCertificate)
	}
	return issuerTLV, serialTLV, nil
}
