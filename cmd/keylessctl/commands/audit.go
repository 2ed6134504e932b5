package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glinharesb/keyless/internal/audit"
	"github.com/glinharesb/keyless/internal/keystore"
)

// AuditFile receives one JSON line per key change, next to the store.
const AuditFile = "audit.log"

// record appends an audit entry for a key change and returns opErr,
// joined with any failure to write the entry.
func (a *app) record(op audit.Operation, keyID string, alg keystore.KeyAlgorithm, opErr error) error {
	f, err := os.OpenFile(filepath.Join(a.dataDir, AuditFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return errors.Join(opErr, fmt.Errorf("open audit log: %w", err))
	}
	defer f.Close()

	e := audit.Entry{
		Operation: op,
		KeyID:     keyID,
		Status:    audit.StatusOK,
		Metadata:  map[string]string{"source": "keylessctl"},
	}
	if alg != 0 {
		e.Algorithm = alg.String()
	}
	if opErr != nil {
		e.Status = audit.StatusError
		e.Metadata["error"] = opErr.Error()
	}

	l := audit.NewLogger(1, f)
	l.Log(e)
	l.Close()
	return opErr
}
