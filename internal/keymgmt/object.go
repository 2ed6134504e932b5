// Package keymgmt implements the key-management operations of the
// keyless provider over opaque, reference-counted public-key objects.
//
// An Object never holds private material. It carries the public half of
// an RSA or EC key plus the identifier under which the remote custodian
// knows the private half.
package keymgmt

import (
	"bytes"
	"errors"
	"sync/atomic"

	"github.com/glinharesb/keyless/internal/diag"
)

var (
	ErrNilKey          = errors.New("nil key object")
	ErrAlreadyImported = errors.New("key object already holds public material")
	ErrUnsupportedKey  = errors.New("parameters describe neither an RSA nor an EC public key")
	ErrBadParameter    = errors.New("malformed key parameter")
	ErrBadReference    = errors.New("reference is not a keyless key object")
)

// KeyType is the tag of the Object union.
type KeyType int

const (
	TypeNone KeyType = iota
	TypeRSA
	TypeEC
)

func (t KeyType) String() string {
	switch t {
	case TypeRSA:
		return "RSA"
	case TypeEC:
		return "EC"
	default:
		return "NONE"
	}
}

// Object is shared by every operation context that borrowed it. The
// reference count starts at 1; the Free that drops it to zero releases
// the object's buffers.
type Object struct {
	refs atomic.Int32

	typ   KeyType
	keyID string

	// RSA
	n []byte
	e []byte

	// EC
	point []byte
	group string

	diag diag.Record
}

// releaseHook is called once per released object. Tests use it to count
// releases.
var releaseHook func(*Object)

func newObject(snapshot diag.Record) *Object {
	o := &Object{diag: snapshot}
	o.refs.Store(1)
	return o
}

// UpRef takes one more reference. It fails on an object that has
// already been released.
func (o *Object) UpRef() bool {
	if o == nil {
		return false
	}
	for {
		cur := o.refs.Load()
		if cur <= 0 {
			return false
		}
		if o.refs.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Dup returns o with one more reference, or nil if o is gone.
func Dup(o *Object) *Object {
	if !o.UpRef() {
		return nil
	}
	return o
}

// Free drops one reference. Extra calls after the count reaches zero are
// ignored so the count never goes negative.
func Free(o *Object) {
	if o == nil {
		return
	}
	for {
		cur := o.refs.Load()
		if cur <= 0 {
			return
		}
		if o.refs.CompareAndSwap(cur, cur-1) {
			if cur == 1 {
				o.release()
			}
			return
		}
	}
}

func (o *Object) release() {
	clear(o.n)
	clear(o.e)
	clear(o.point)
	o.n, o.e, o.point = nil, nil, nil
	o.group = ""
	o.keyID = ""
	if releaseHook != nil {
		releaseHook(o)
	}
}

// Load resolves a load-by-reference request: ref must be an *Object,
// which is returned with an extra reference.
func Load(ref any) (*Object, error) {
	o, ok := ref.(*Object)
	if !ok || o == nil {
		return nil, ErrBadReference
	}
	if Dup(o) == nil {
		return nil, ErrBadReference
	}
	return o, nil
}

// Refs reports the current reference count.
func (o *Object) Refs() int32 { return o.refs.Load() }

func (o *Object) Type() KeyType {
	if o == nil {
		return TypeNone
	}
	return o.typ
}

func (o *Object) KeyID() string {
	if o == nil {
		return ""
	}
	return o.keyID
}

// Group returns the EC group name, or "" for RSA keys and EC keys
// imported without one.
func (o *Object) Group() string {
	if o == nil || o.typ != TypeEC {
		return ""
	}
	return o.group
}

func (o *Object) Modulus() []byte  { return o.rsaField(o.n) }
func (o *Object) Exponent() []byte { return o.rsaField(o.e) }

func (o *Object) rsaField(b []byte) []byte {
	if o == nil || o.typ != TypeRSA {
		return nil
	}
	return bytes.Clone(b)
}

// ModulusLen is the RSA modulus length in bytes, 0 for other keys.
func (o *Object) ModulusLen() int {
	if o == nil || o.typ != TypeRSA {
		return 0
	}
	return len(o.n)
}

func (o *Object) Point() []byte {
	if o == nil || o.typ != TypeEC {
		return nil
	}
	return bytes.Clone(o.point)
}

// Size is the output-size probe answer: the modulus length for RSA and a
// bound large enough for every supported curve for EC.
func (o *Object) Size() int {
	switch o.Type() {
	case TypeRSA:
		return len(o.n)
	case TypeEC:
		return 80
	default:
		return 0
	}
}

// Diag is the resolver state captured when the object was created.
func (o *Object) Diag() diag.Record { return o.diag }
