package commands

import (
	gocrypto "crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/glinharesb/keyless"
	"github.com/glinharesb/keyless/internal/audit"
	"github.com/glinharesb/keyless/internal/crypto"
	"github.com/glinharesb/keyless/internal/hsm"
	"github.com/glinharesb/keyless/internal/keystore"
)

func keyIDCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keyid <cert.pem>",
		Short: "Print the key id of a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _, err := leafKeyID(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	}
}

func leafKeyID(path string) (string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	chain, err := crypto.ParseCertificatesPEM(data)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	id, err := keyless.CertKeyID(chain[0])
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	return id, chain[0], nil
}

var errKeyMismatch = errors.New("private key does not match the certificate")

func matchesCertificate(pub gocrypto.PublicKey, leafDER []byte) error {
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return fmt.Errorf("parse leaf certificate: %w", err)
	}
	if !crypto.SamePublicKey(pub, leaf.PublicKey) {
		return errKeyMismatch
	}
	return nil
}

func importCmd(a *app) *cobra.Command {
	var (
		certPath string
		keyPath  string
		labels   []string
	)
	cmd := &cobra.Command{
		Use:   "import --cert cert.pem --key key.pem",
		Short: "Import a private key under the key id of its certificate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, leafDER, err := leafKeyID(certPath)
			if err != nil {
				return err
			}
			pemData, err := os.ReadFile(keyPath)
			if err != nil {
				return err
			}
			key, err := crypto.ParsePrivateKeyPEM(pemData)
			if err != nil {
				return fmt.Errorf("%s: %w", keyPath, err)
			}
			if err := matchesCertificate(key.Public(), leafDER); err != nil {
				return err
			}
			lbls, err := parseLabels(labels)
			if err != nil {
				return err
			}

			entry, err := keystore.NewEntry(id, key, lbls)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if err := a.record(audit.OpImport, id, entry.Algorithm, store.Put(entry)); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\t%s\n", id, entry.Algorithm)
			return nil
		},
	}
	cmd.Flags().StringVar(&certPath, "cert", "", "PEM certificate chain, leaf first")
	cmd.Flags().StringVar(&keyPath, "key", "", "PEM private key")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "key=value label (repeatable)")
	cmd.MarkFlagRequired("cert")
	cmd.MarkFlagRequired("key")
	return cmd
}

func generateCmd(a *app) *cobra.Command {
	var (
		algName string
		id      string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a key in the store and print its public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := keystore.ParseAlgorithm(algName)
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}
			key, err := hsm.NewSoftwareHSM().GenerateKey(alg)
			if err != nil {
				return err
			}
			entry, err := keystore.NewEntry(id, key, nil)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if err := a.record(audit.OpGenerate, id, alg, store.Put(entry)); err != nil {
				return err
			}
			pubPEM, err := crypto.EncodePublicKeyPEM(key.Public())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\t%s\n%s", id, alg, pubPEM)
			return nil
		},
	}
	cmd.Flags().StringVar(&algName, "algorithm", keystore.AlgorithmECDSAP256.String(), "key algorithm, e.g. RSA_2048 or ECDSA_P384")
	cmd.Flags().StringVar(&id, "id", "", "key id (default a random UUID)")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	var statusName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter keystore.KeyStatus
			switch strings.ToLower(statusName) {
			case "", "all":
			case "active":
				filter = keystore.StatusActive
			case "deactivated":
				filter = keystore.StatusDeactivated
			default:
				return fmt.Errorf("unknown status %q", statusName)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			keys, err := store.List(filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tALGORITHM\tSTATUS\tCREATED")
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k.ID, k.Algorithm, k.Status, k.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&statusName, "status", "all", "filter by status: all, active or deactivated")
	return cmd
}

func statusCmd(a *app, verb string, st keystore.KeyStatus, op audit.Operation) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <key-id>",
		Short: "Mark a key " + strings.ToLower(st.String()),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if err := a.record(op, args[0], 0, store.UpdateStatus(args[0], st)); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(a.out, "%s\t%s\n", args[0], st)
			return nil
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Remove a key from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if err := a.record(audit.OpDelete, args[0], 0, store.Delete(args[0])); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(a.out, "%s\tdeleted\n", args[0])
			return nil
		},
	}
}

func parseLabels(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("label %q is not key=value", p)
		}
		labels[k] = v
	}
	return labels, nil
}
