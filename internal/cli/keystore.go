package cli

import (
	"context"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mrz1836/coincore/internal/chain/btc"
	"github.com/mrz1836/coincore/internal/keystore"
	"github.com/mrz1836/coincore/internal/output"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	initWords   int
	initImport  bool
	initStellar bool
	initBIP39   bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command
var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "Manage the encrypted key vault",
	Long: `Manage the age-encrypted vault that holds the wallet mnemonic.

Signing keys are derived from the vault only after the second password
unlocks it.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command
var keystoreInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new vault",
	Long: `Create a new vault protected by a second password.

A fresh mnemonic is generated and printed once. Write it down: it is the
only way to recover the wallet. Use --import to store an existing one.`,
	Example: `  coincore keystore init
  coincore keystore init --words 24
  coincore keystore init --import --stellar`,
	RunE: runKeystoreInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command
var keystoreAddressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Show the receive address of every chain",
	RunE:  runKeystoreAddresses,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	keystoreInitCmd.Flags().IntVar(&initWords, "words", 12, "mnemonic length: 12 or 24")
	keystoreInitCmd.Flags().BoolVar(&initImport, "import", false, "import an existing mnemonic instead of generating one")
	keystoreInitCmd.Flags().BoolVar(&initStellar, "stellar", false, "also import a Stellar secret seed (S...)")
	keystoreInitCmd.Flags().BoolVar(&initBIP39, "bip39-passphrase", false, "protect the seed with an extra BIP39 passphrase")

	keystoreCmd.AddCommand(keystoreInitCmd, keystoreAddressesCmd)
	rootCmd.AddCommand(keystoreCmd)
}

// keystoreResult is the output of keystore commands.
type keystoreResult struct {
	Path      string            `json:"path"`
	Mnemonic  string            `json:"mnemonic,omitempty"`
	Addresses map[string]string `json:"addresses"`
}

// Table lists the addresses in chain order, after the mnemonic if shown.
func (r keystoreResult) Table() *output.Table {
	t := output.NewTable()
	t.SetNoHeader(true)
	t.AddRow("Vault:", r.Path)
	if r.Mnemonic != "" {
		t.AddRow("Mnemonic:", r.Mnemonic)
	}

	ids := make([]string, 0, len(r.Addresses))
	for id := range r.Addresses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t.AddRow(id+":", r.Addresses[id])
	}
	return t
}

func runKeystoreInit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	p := newPrompter(cmd)

	path := cfg.GetKeystorePath()
	if _, err := os.Stat(path); err == nil {
		return coreerr.WithDetails(keystore.ErrVaultExists, map[string]string{"path": path})
	}

	vault, generated, err := readVault(ctx, p)
	if err != nil {
		return err
	}

	pw, err := p.NewPassword(ctx)
	if err != nil {
		return err
	}

	if err := keystore.Create(path, vault, pw); err != nil {
		return err
	}
	logger.Debug("created keystore at %s", path)

	addrs, err := vaultAddresses(ctx, path, pw)
	if err != nil {
		return err
	}

	res := keystoreResult{Path: path, Addresses: addrs}
	if generated {
		res.Mnemonic = vault.Mnemonic
	}
	return formatter.Print(res)
}

// readVault generates a mnemonic, or reads one with --import, plus the
// optional passphrase and Stellar seed.
func readVault(ctx context.Context, p prompter) (keystore.Vault, bool, error) {
	var (
		v         keystore.Vault
		generated bool
		err       error
	)
	if initImport {
		if v.Mnemonic, err = p.Line(ctx, "Mnemonic: "); err != nil {
			return v, false, err
		}
	} else {
		if v.Mnemonic, err = keystore.GenerateMnemonic(initWords); err != nil {
			return v, false, err
		}
		generated = true
	}

	if initBIP39 {
		if v.Passphrase, err = p.Line(ctx, "BIP39 passphrase: "); err != nil {
			return v, false, err
		}
	}
	if initStellar {
		if v.StellarSeed, err = p.Line(ctx, "Stellar secret seed: "); err != nil {
			return v, false, err
		}
	}
	return v, generated, v.Validate()
}

func runKeystoreAddresses(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	p := newPrompter(cmd)

	pw, ok, err := p.RequestSecondPassword(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return coreerr.ErrCancelled
	}

	path := cfg.GetKeystorePath()
	addrs, err := vaultAddresses(ctx, path, pw)
	if err != nil {
		return err
	}
	return formatter.Print(keystoreResult{Path: path, Addresses: addrs})
}

func vaultAddresses(ctx context.Context, path, pw string) (map[string]string, error) {
	params, err := btc.Params(cfg.Networks.BTC.Network)
	if err != nil {
		return nil, err
	}
	store, err := keystore.Open(path, params)
	if err != nil {
		return nil, err
	}
	byChain, err := store.Addresses(ctx, pw)
	if err != nil {
		return nil, err
	}

	addrs := make(map[string]string, len(byChain))
	for id, addr := range byChain {
		addrs[string(id)] = addr
	}
	return addrs, nil
}
