package keymgmt

// Operation identifies a provider operation category.
type Operation int

const (
	OpKeyMgmt Operation = iota + 1
	OpSignature
	OpAsymCipher
)

func (op Operation) String() string {
	switch op {
	case OpKeyMgmt:
		return "keymgmt"
	case OpSignature:
		return "signature"
	case OpAsymCipher:
		return "asym-cipher"
	default:
		return "unknown"
	}
}

// Functions is the key-management dispatch table handed to the host.
type Functions struct {
	New                func() *Object
	Free               func(*Object)
	Dup                func(*Object) *Object
	Load               func(ref any) (*Object, error)
	Has                func(*Object, Selection) bool
	Match              func(a, b *Object, selection Selection) bool
	Import             func(*Object, Selection, Params) error
	GetParams          func(obj *Object, names ...string) (Params, error)
	GettableParams     func() []ParamDescriptor
	ImportTypes        func(Selection) []ParamDescriptor
	QueryOperationName func(Operation) string
}

func (m *Manager) functions(opName func(Operation) string) Functions {
	return Functions{
		New:                m.New,
		Free:               Free,
		Dup:                Dup,
		Load:               Load,
		Has:                m.Has,
		Match:              m.Match,
		Import:             m.Import,
		GetParams:          m.GetParams,
		GettableParams:     GettableParams,
		ImportTypes:        ImportTypes,
		QueryOperationName: opName,
	}
}

// RSAFunctions is the table for RSA keys, which serve signatures and
// asymmetric decryption.
func (m *Manager) RSAFunctions() Functions {
	return m.functions(func(op Operation) string {
		if op == OpSignature || op == OpAsymCipher {
			return "RSA"
		}
		return ""
	})
}

// ECFunctions is the table for EC keys, which only serve signatures.
func (m *Manager) ECFunctions() Functions {
	return m.functions(func(op Operation) string {
		if op == OpSignature {
			return "ECDSA"
		}
		return ""
	})
}
