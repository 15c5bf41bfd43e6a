package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ite-app/trustd/internal/config"
	"github.com/ite-app/trustd/internal/connector"
)

func serveCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep connector sessions alive, reloading the catalog on config changes",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
			runServe()
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func runServe() {
	stack := buildStack()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The reload handler runs on the watcher goroutine; regMu guards the
	// registry swap against the shutdown read below.
	var regMu sync.Mutex
	registry := stack.registry
	registry.RefreshStored(ctx)

	// Editing the catalog re-registers connectors without a restart. Sessions
	// of removed connectors are closed; tokens in the vault stay put.
	watcher, err := config.NewWatcher(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	watcher.OnChange(func(cfg *config.Config) {
		next := connector.NewRegistry(cfg.Connectors, stack.manager)
		for _, c := range next.All() {
			c.AuthURLHandler = printAuthURL
		}

		regMu.Lock()
		prev := registry
		registry = next
		regMu.Unlock()

		prev.Shutdown()
		next.RefreshStored(ctx)
	})
	watching := true
	if err := watcher.Start(); err != nil {
		// The config file may not exist yet; run without hot reload.
		fmt.Fprintf(os.Stderr, "config watch disabled: %s\n", err)
		watching = false
	}

	fmt.Println("trustd running, press Ctrl+C to stop")
	<-ctx.Done()

	// Stop the watcher first so no reload handler races the final shutdown.
	if watching {
		watcher.Stop()
	}

	regMu.Lock()
	final := registry
	regMu.Unlock()
	final.Shutdown()
	fmt.Println("stopped")
}
