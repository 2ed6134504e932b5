package keymgmt

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/glinharesb/keyless/internal/cryptolib"
	"github.com/glinharesb/keyless/internal/diag"
)

// Manager implements key management on behalf of one provider.
type Manager struct {
	lib      *cryptolib.Lib
	log      *slog.Logger
	snapshot diag.Record
}

// NewManager returns a manager whose new objects capture snapshot.
func NewManager(lib *cryptolib.Lib, log *slog.Logger, snapshot diag.Record) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{lib: lib, log: log, snapshot: snapshot}
}

// New returns an empty object holding one reference.
func (m *Manager) New() *Object {
	return newObject(m.snapshot)
}

// Import fills obj from params. Keys are classified as RSA when a
// modulus is present and as EC when a public point is present. The key
// identifier is optional. Nothing is written to obj unless every
// parameter decodes.
func (m *Manager) Import(obj *Object, selection Selection, params Params) error {
	if obj == nil {
		return ErrNilKey
	}
	if selection&SelectPublicKey == 0 {
		return nil
	}
	if obj.typ != TypeNone {
		return ErrAlreadyImported
	}

	staged := Object{}
	switch {
	case params.has(ParamRSAN):
		if !params.has(ParamRSAE) {
			return fmt.Errorf("%w: RSA modulus without exponent", ErrBadParameter)
		}
		n, err := bigBytes(ParamRSAN, params[ParamRSAN])
		if err != nil {
			return err
		}
		e, err := bigBytes(ParamRSAE, params[ParamRSAE])
		if err != nil {
			return err
		}
		staged.typ, staged.n, staged.e = TypeRSA, n, e
	case params.has(ParamPubKey):
		point, ok := params[ParamPubKey].([]byte)
		if !ok || len(point) == 0 {
			return fmt.Errorf("%w: %s must be non-empty bytes", ErrBadParameter, ParamPubKey)
		}
		staged.typ, staged.point = TypeEC, append([]byte(nil), point...)
		if v, ok := params[ParamGroupName]; ok {
			group, err := textParam(ParamGroupName, v)
			if err != nil {
				return err
			}
			staged.group = group
		}
	default:
		return ErrUnsupportedKey
	}

	if v, ok := params[ParamKeyID]; ok {
		id, err := textParam(ParamKeyID, v)
		if err != nil {
			return err
		}
		staged.keyID = id
	}

	obj.typ = staged.typ
	obj.n, obj.e = staged.n, staged.e
	obj.point, obj.group = staged.point, staged.group
	obj.keyID = staged.keyID

	m.log.Debug("key imported", "type", obj.typ.String(), "key_id", obj.keyID)
	return nil
}

// Has reports whether obj carries the parts named by selection. Private
// material lives with the custodian and cannot be checked locally, so
// it is always reported present.
func (m *Manager) Has(obj *Object, selection Selection) bool {
	if obj == nil {
		return false
	}
	if selection&SelectPublicKey != 0 {
		switch obj.typ {
		case TypeRSA:
			return len(obj.n) > 0 && len(obj.e) > 0
		case TypeEC:
			return len(obj.point) > 0
		default:
			return false
		}
	}
	return true
}

// Match reports whether a and b agree on the parts named by selection.
// Private-key selections always match; the custodian is the authority
// for private material.
func (m *Manager) Match(a, b *Object, selection Selection) bool {
	if a == nil || b == nil {
		return false
	}
	if selection&SelectPublicKey == 0 {
		return true
	}
	if a.typ != b.typ {
		return false
	}

	switch a.typ {
	case TypeRSA:
		var ch diag.Channel
		cmpN, err := m.lib.BNCmp(&ch, a.n, b.n)
		if !diag.Check(m.log, ch.Get(), "keymgmt match") || err != nil {
			return false
		}
		cmpE, err := m.lib.BNCmp(&ch, a.e, b.e)
		if !diag.Check(m.log, ch.Get(), "keymgmt match") || err != nil {
			return false
		}
		return cmpN == 0 && cmpE == 0
	case TypeEC:
		return bytes.Equal(a.point, b.point) && a.group == b.group
	}
	return true
}

// GetParams reports the named parameters that apply to obj. With no
// names every applicable parameter is reported. Parameters that do not
// apply, such as security-bits for a key below 2048 bits, are omitted.
func (m *Manager) GetParams(obj *Object, names ...string) (Params, error) {
	if obj == nil {
		return nil, ErrNilKey
	}
	all := exportParams(obj)
	if len(names) == 0 {
		return all, nil
	}
	out := make(Params, len(names))
	for _, name := range names {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}

func exportParams(obj *Object) Params {
	p := Params{}
	switch obj.typ {
	case TypeRSA:
		p[ParamRSAN] = new(big.Int).SetBytes(obj.n)
		p[ParamRSAE] = new(big.Int).SetBytes(obj.e)
		p[ParamMaxSize] = len(obj.n)
		bits := uint(len(obj.n) * 8)
		p[ParamBits] = bits
		if sec := RSASecurityBits(bits); sec > 0 {
			p[ParamSecurityBits] = sec
		}
	case TypeEC:
		p[ParamPubKey] = bytes.Clone(obj.point)
		if obj.group != "" {
			p[ParamGroupName] = obj.group
		}
		p[ParamMaxSize] = ECMaxSignatureSize(obj.group)
	}
	if obj.keyID != "" {
		p[ParamKeyID] = obj.keyID
	}
	p[ParamDefaultDigest] = DefaultDigest(obj)
	return p
}

// RSASecurityBits maps an RSA modulus size to its security strength
// (NIST SP 800-57 Part 1 Rev. 5, Table 2). Sizes below 2048 are unrated.
func RSASecurityBits(bits uint) uint {
	switch {
	case bits >= 15360:
		return 256
	case bits >= 7680:
		return 192
	case bits >= 3072:
		return 128
	case bits >= 2048:
		return 112
	default:
		return 0
	}
}

// ECOrderBits returns the bit length of the group order for a named
// curve, or 0 for an unknown group.
func ECOrderBits(group string) uint {
	switch strings.ToLower(group) {
	case "p-256", "p256", "prime256v1", "secp256r1", "secp256k1":
		return 256
	case "p-384", "p384", "secp384r1":
		return 384
	case "p-521", "p521", "secp521r1":
		return 521
	default:
		return 0
	}
}

// ECMaxSignatureSize bounds a DER ECDSA signature: two INTEGERs of the
// order size plus framing. Unknown groups get a bound above P-521's.
func ECMaxSignatureSize(group string) int {
	bits := ECOrderBits(group)
	if bits == 0 {
		return 160
	}
	nbytes := int((bits + 7) / 8)
	return 2*nbytes + 10
}

// DefaultDigest picks the digest matching the key's strength.
func DefaultDigest(obj *Object) string {
	switch obj.Type() {
	case TypeEC:
		bits := ECOrderBits(obj.group)
		switch {
		case bits >= 512:
			return "SHA512"
		case bits >= 384:
			return "SHA384"
		}
	case TypeRSA:
		bits := len(obj.n) * 8
		switch {
		case bits >= 7680:
			return "SHA512"
		case bits >= 3072:
			return "SHA384"
		}
	}
	return "SHA256"
}
