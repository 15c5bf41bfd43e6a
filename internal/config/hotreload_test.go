package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("keychainService: com.ite.app\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("keychainService: com.ite.dev\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.KeychainService != "com.ite.dev" {
			t.Errorf("KeychainService = %q, want com.ite.dev", cfg.KeychainService)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload handler not invoked")
	}
}

func TestWatcherKeepsPreviousConfigOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("keychainService: com.ite.app\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	called := make(chan struct{}, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("connectors: [broken"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-called:
		t.Fatal("handler invoked for unparseable config")
	case <-time.After(time.Second):
	}
}

func TestWatcherStartFailsOnMissingFile(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.fsw.Close()

	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatal("expected Start to fail for a missing file")
	}
}
