// Package cmd wires the trust-layer CLI: vault and secret administration,
// legacy migration, and connector lifecycle management.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ite-app/trustd/internal/config"
	"github.com/ite-app/trustd/internal/connector"
	"github.com/ite-app/trustd/internal/keychain"
	"github.com/ite-app/trustd/internal/secrets"
	"github.com/ite-app/trustd/internal/vault"
	"github.com/ite-app/trustd/pkg/browser"
)

var configPath string

// Execute runs the root command.
func Execute() {
	root := &cobra.Command{
		Use:   "trustd",
		Short: "Credential trust layer for the translation workstation",
		Long: `trustd manages the encrypted secret vault, the platform secure-store
master key, and OAuth connections to external knowledge-base services.

Secret values are never printed or logged; commands report key names and
status only.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.ite/config.yaml)")

	root.AddCommand(doctorCmd())
	root.AddCommand(secretsCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(connectorsCmd())
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// trustStack is the assembled trust layer for one command invocation.
type trustStack struct {
	cfg      *config.Config
	kc       keychain.Keychain
	manager  *secrets.Manager
	registry *connector.Registry
}

// buildStack constructs the full chain: secure store, master key provider,
// vault store, secrets manager, connector registry. Initialization failures
// are fatal; the process never falls back to unencrypted storage.
func buildStack() *trustStack {
	cfg := loadConfig()
	kc := keychain.System{}

	mgr := secrets.NewManager(
		keychain.NewMasterKeyProviderForService(kc, cfg.KeychainService),
		vault.NewStore(cfg.VaultPath),
	)
	if _, err := mgr.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fatalHint(err)
		os.Exit(1)
	}

	reg := connector.NewRegistry(cfg.Connectors, mgr)
	for _, c := range reg.All() {
		c.AuthURLHandler = printAuthURL
	}

	return &trustStack{cfg: cfg, kc: kc, manager: mgr, registry: reg}
}

func printAuthURL(authURL string) {
	fmt.Println("Open this URL in your browser to authorize:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	if err := browser.Open(authURL); err != nil {
		slog.Debug("browser not launched", "reason", err.Error())
	}
}

// fatalHint adds a recovery suggestion for known fatal states.
func fatalHint(err error) {
	var ie *keychain.InitError
	if errors.As(err, &ie) {
		fmt.Fprintln(os.Stderr, "The platform secure store is unavailable or holds a malformed master key entry.")
		fmt.Fprintln(os.Stderr, "Run: trustd doctor")
		return
	}
	if errors.Is(err, vault.ErrCorrupted) {
		fmt.Fprintln(os.Stderr, "The vault file failed integrity verification and was not loaded.")
		fmt.Fprintln(os.Stderr, "Run: trustd doctor --reset-vault --yes   (discards all stored secrets)")
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
