// Package commands implements keylessctl, the operator tool for the
// custodian key store.
package commands

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/glinharesb/keyless/internal/audit"
	"github.com/glinharesb/keyless/internal/config"
	"github.com/glinharesb/keyless/internal/keystore"
)

var errNoDataDir = errors.New("no data directory: set --data-dir or KEYLESS_DATA_DIR")

type app struct {
	out     io.Writer
	dataDir string
	sealKey string
}

func (a *app) openStore() (*keystore.PersistentStore, error) {
	if a.dataDir == "" {
		return nil, errNoDataDir
	}
	var opts []keystore.Option
	if a.sealKey != "" {
		opts = append(opts, keystore.WithSealKey([]byte(a.sealKey)))
	}
	return keystore.OpenDir(a.dataDir, opts...)
}

// NewRoot builds the keylessctl command tree writing results to out.
func NewRoot(out io.Writer) *cobra.Command {
	cfg := config.Load()
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "keylessctl",
		Short:         "Manage the keys held by a keyless custodian",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", cfg.DataDir, "custodian data directory (default $KEYLESS_DATA_DIR)")
	root.PersistentFlags().StringVar(&a.sealKey, "seal-key", cfg.SealKey, "key sealing secret (default $KEYLESS_SEAL_KEY)")

	root.AddCommand(
		keyIDCmd(a),
		importCmd(a),
		generateCmd(a),
		listCmd(a),
		statusCmd(a, "activate", keystore.StatusActive, audit.OpActivate),
		statusCmd(a, "deactivate", keystore.StatusDeactivated, audit.OpDeactivate),
		deleteCmd(a),
	)
	return root
}
