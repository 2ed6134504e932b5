package commands

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glinharesb/keyless"
	"github.com/glinharesb/keyless/internal/audit"
	"github.com/glinharesb/keyless/internal/keystore"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("KEYLESS_DATA_DIR", "")
	t.Setenv("KEYLESS_SEAL_KEY", "")
	var out bytes.Buffer
	root := NewRoot(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeCertAndKey writes a self-signed certificate and its key as PEM
// files and returns their paths and the certificate DER.
func writeCertAndKey(t *testing.T, dir string) (certPath, keyPath string, der []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(4242),
		Subject:      pkix.Name{CommonName: "keylessctl test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err = x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		t.Fatal(err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600)
	os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), 0600)
	return certPath, keyPath, der
}

func TestKeyID(t *testing.T) {
	certPath, _, der := writeCertAndKey(t, t.TempDir())
	want, err := keyless.CertKeyID(der)
	if err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "keyid", certPath)
	if err != nil {
		t.Fatalf("keyid: %v", err)
	}
	if strings.TrimSpace(out) != want {
		t.Fatalf("keyid = %q, want %q", out, want)
	}
}

func TestImportListDeactivate(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	certPath, keyPath, der := writeCertAndKey(t, dir)
	id, _ := keyless.CertKeyID(der)

	out, err := run(t, "--data-dir", dataDir, "import", "--cert", certPath, "--key", keyPath, "--label", "env=test")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.HasPrefix(out, id) || !strings.Contains(out, "ECDSA_P256") {
		t.Fatalf("unexpected import output %q", out)
	}

	if _, err := run(t, "--data-dir", dataDir, "import", "--cert", certPath, "--key", keyPath); err == nil {
		t.Fatal("importing the same key twice should fail")
	}

	out, err = run(t, "--data-dir", dataDir, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "ACTIVE") {
		t.Fatalf("list missing key: %q", out)
	}

	if _, err := run(t, "--data-dir", dataDir, "deactivate", id); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	store, err := keystore.OpenDir(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != keystore.StatusDeactivated || got.Labels["env"] != "test" {
		t.Fatalf("unexpected stored entry %+v", got)
	}

	out, _ = run(t, "--data-dir", dataDir, "list", "--status", "active")
	if strings.Contains(out, id) {
		t.Fatalf("deactivated key listed as active: %q", out)
	}

	entries := readAudit(t, dataDir)
	want := []struct {
		op     audit.Operation
		status string
	}{
		{audit.OpImport, audit.StatusOK},
		{audit.OpImport, audit.StatusError},
		{audit.OpDeactivate, audit.StatusOK},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d audit entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, w := range want {
		e := entries[i]
		if e.Operation != w.op || e.Status != w.status || e.KeyID != id {
			t.Errorf("entry %d = %s/%s/%s, want %s/%s", i, e.Operation, e.Status, e.KeyID, w.op, w.status)
		}
		if e.Metadata["source"] != "keylessctl" {
			t.Errorf("entry %d missing source: %v", i, e.Metadata)
		}
	}
	if entries[0].Algorithm != "ECDSA_P256" {
		t.Errorf("import entry algorithm = %q", entries[0].Algorithm)
	}
}

func readAudit(t *testing.T, dataDir string) []audit.Entry {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dataDir, AuditFile))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	var entries []audit.Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var e audit.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("decode audit line %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestImportRejectsMismatchedKey(t *testing.T) {
	dir := t.TempDir()
	certPath, _, _ := writeCertAndKey(t, dir)
	_, otherKey, _ := writeCertAndKey(t, t.TempDir())

	_, err := run(t, "--data-dir", filepath.Join(dir, "data"), "import", "--cert", certPath, "--key", otherKey)
	if err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Fatalf("got %v, want key mismatch", err)
	}
}

func TestGenerateSealed(t *testing.T) {
	dataDir := t.TempDir()

	out, err := run(t, "--data-dir", dataDir, "--seal-key", "secret", "generate", "--algorithm", "ecdsa_p384", "--id", "gen-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(out, "gen-1\tECDSA_P384") || !strings.Contains(out, "BEGIN PUBLIC KEY") {
		t.Fatalf("unexpected generate output %q", out)
	}

	if _, err := run(t, "--data-dir", dataDir, "list"); err == nil {
		t.Fatal("sealed store should not open without the seal key")
	}
	out, err = run(t, "--data-dir", dataDir, "--seal-key", "secret", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "gen-1") {
		t.Fatalf("generated key not listed: %q", out)
	}
}

func TestDeleteAndErrors(t *testing.T) {
	dataDir := t.TempDir()
	if _, err := run(t, "--data-dir", dataDir, "generate", "--id", "gen-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := run(t, "--data-dir", dataDir, "delete", "gen-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := run(t, "--data-dir", dataDir, "activate", "gen-1"); err == nil {
		t.Fatal("activating a deleted key should fail")
	}
	var ops []audit.Operation
	for _, e := range readAudit(t, dataDir) {
		ops = append(ops, e.Operation)
	}
	if len(ops) != 3 || ops[0] != audit.OpGenerate || ops[1] != audit.OpDelete || ops[2] != audit.OpActivate {
		t.Fatalf("unexpected audit operations %v", ops)
	}
	if _, err := run(t, "list"); err != errNoDataDir {
		t.Fatalf("got %v, want errNoDataDir", err)
	}
	if _, err := run(t, "--data-dir", dataDir, "list", "--status", "bogus"); err == nil {
		t.Fatal("unknown status should fail")
	}
}

func TestParseLabels(t *testing.T) {
	got, err := parseLabels([]string{"env=prod", "team=edge=1"})
	if err != nil {
		t.Fatal(err)
	}
	if got["env"] != "prod" || got["team"] != "edge=1" {
		t.Fatalf("unexpected labels %v", got)
	}
	if _, err := parseLabels([]string{"=x"}); err == nil {
		t.Fatal("empty label key should fail")
	}
}
