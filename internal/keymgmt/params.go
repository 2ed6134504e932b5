package keymgmt

import (
	"fmt"
	"math/big"
	"strings"
)

// Parameter names.
const (
	ParamRSAN          = "n"
	ParamRSAE          = "e"
	ParamPubKey        = "pub"
	ParamGroupName     = "group"
	ParamKeyID         = "keyless-id"
	ParamBits          = "bits"
	ParamSecurityBits  = "security-bits"
	ParamMaxSize       = "max-size"
	ParamDefaultDigest = "default-digest"
)

// Params carries key parameters by name. RSA n and e may be *big.Int or
// big-endian []byte; pub is []byte; group and keyless-id are strings.
type Params map[string]any

func (p Params) has(name string) bool {
	_, ok := p[name]
	return ok
}

// Selection selects which parts of a key an operation concerns.
type Selection int

const (
	SelectPrivateKey       Selection = 0x01
	SelectPublicKey        Selection = 0x02
	SelectDomainParameters Selection = 0x04
	SelectOtherParameters  Selection = 0x80

	SelectKeyPair = SelectPrivateKey | SelectPublicKey
	SelectAll     = SelectKeyPair | SelectDomainParameters | SelectOtherParameters
)

// ParamType describes the encoding of a parameter.
type ParamType int

const (
	TypeBigNum ParamType = iota + 1
	TypeOctets
	TypeUTF8
	TypeUint
	TypeSize
)

// ParamDescriptor names a parameter and its type.
type ParamDescriptor struct {
	Name string
	Type ParamType
}

var gettable = []ParamDescriptor{
	{ParamKeyID, TypeUTF8},
	{ParamBits, TypeUint},
	{ParamSecurityBits, TypeUint},
	{ParamMaxSize, TypeSize},
	{ParamDefaultDigest, TypeUTF8},
}

var importPublic = []ParamDescriptor{
	{ParamRSAN, TypeBigNum},
	{ParamRSAE, TypeBigNum},
	{ParamPubKey, TypeOctets},
	{ParamGroupName, TypeUTF8},
	{ParamKeyID, TypeUTF8},
}

// GettableParams lists the parameters GetParams can report beyond the
// raw public material.
func GettableParams() []ParamDescriptor {
	return append([]ParamDescriptor(nil), gettable...)
}

// ImportTypes lists the parameters Import understands for selection.
func ImportTypes(selection Selection) []ParamDescriptor {
	if selection&SelectPublicKey == 0 {
		return nil
	}
	return append([]ParamDescriptor(nil), importPublic...)
}

// bigBytes decodes an unsigned integer parameter to big-endian bytes.
func bigBytes(name string, v any) ([]byte, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil || x.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive", ErrBadParameter, name)
		}
		return x.Bytes(), nil
	case []byte:
		if len(x) == 0 {
			return nil, fmt.Errorf("%w: %s is empty", ErrBadParameter, name)
		}
		return append([]byte(nil), x...), nil
	default:
		return nil, fmt.Errorf("%w: %s has type %T", ErrBadParameter, name, v)
	}
}

// textParam decodes a string parameter, stopping at the first NUL.
func textParam(name string, v any) (string, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return "", fmt.Errorf("%w: %s has type %T", ErrBadParameter, name, v)
	}
	s, _, _ = strings.Cut(s, "\x00")
	return s, nil
}
