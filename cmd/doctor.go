package cmd

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ite-app/trustd/internal/keychain"
	"github.com/ite-app/trustd/internal/secrets"
	"github.com/ite-app/trustd/internal/vault"
)

func doctorCmd() *cobra.Command {
	var resetVault bool
	var yes bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check secure store and vault health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(resetVault, yes)
		},
	}
	cmd.Flags().BoolVar(&resetVault, "reset-vault", false, "delete the vault file (all stored secrets are lost)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive reset")
	return cmd
}

func runDoctor(resetVault, yes bool) {
	fmt.Println("trustd doctor")
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}
	cfg := loadConfig()

	// Secure store
	fmt.Println()
	fmt.Printf("  Secure store (%s): ", cfg.KeychainService)
	kc := keychain.System{}
	probe := keychain.NewMasterKeyProviderForService(kc, cfg.KeychainService)
	if _, err := probe.Load(); err != nil {
		fmt.Println("UNUSABLE")
		fmt.Printf("    %s\n", err)
	} else {
		fmt.Println("OK (master key available)")
	}

	// Vault
	fmt.Println()
	store := vault.NewStore(cfg.VaultPath)
	fmt.Printf("  Vault:    %s", store.Path())
	if !store.Exists() {
		fmt.Println(" (not created yet)")
	} else {
		fmt.Println()
	}

	if resetVault {
		doResetVault(store, yes)
		return
	}

	mgr := secrets.NewManager(probe, store)
	res, err := mgr.Initialize()
	switch {
	case errors.Is(err, vault.ErrCorrupted):
		fmt.Println("    Integrity: FAILED (vault is corrupted or was tampered with)")
		fmt.Println("    Recover with: trustd doctor --reset-vault --yes")
	case errors.Is(err, vault.ErrUnsupportedVersion):
		fmt.Println("    Integrity: unsupported vault format version")
	case err != nil:
		fmt.Printf("    Initialize: %s\n", err)
	default:
		fmt.Printf("    Integrity: OK (%d secrets cached)\n", res.CachedCount)
	}

	// Connector catalog
	fmt.Println()
	fmt.Printf("  Connectors: %d configured\n", len(cfg.Connectors))
	for _, d := range cfg.Connectors {
		fmt.Printf("    %-14s %s\n", d.ID, d.DisplayName)
	}
}

// doResetVault deletes the vault file. Every stored secret is lost and the
// master key stays in place, so a new empty vault seals with the same key.
func doResetVault(store *vault.Store, yes bool) {
	if !store.Exists() {
		fmt.Println("    Nothing to reset: vault file does not exist.")
		return
	}
	if !yes {
		fmt.Println("    Refusing to reset without --yes.")
		fmt.Println("    This permanently deletes every stored secret.")
		os.Exit(1)
	}
	if err := store.Reset(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("    Vault deleted. A fresh vault will be created on next use.")
}
