package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.KeychainService != "com.ite.app" {
		t.Errorf("KeychainService = %q", cfg.KeychainService)
	}
	if cfg.VaultPath == "" {
		t.Error("VaultPath should have a default")
	}
	if len(cfg.Connectors) == 0 {
		t.Fatal("default connector catalog is empty")
	}
}

func TestLoadOverridesAndMerges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
vaultPath: ` + filepath.Join(dir, "custom.vault") + `
connectors:
  - id: dropbox
    displayName: Dropbox Business
    authUrl: https://www.dropbox.com/oauth2/authorize
    tokenUrl: https://api.dropboxapi.com/oauth2/token
    redirectPort: 24999
  - id: internal-kb
    displayName: Internal KB
    authUrl: https://kb.internal/authorize
    tokenUrl: https://kb.internal/token
    redirectPort: 25000
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VaultPath != filepath.Join(dir, "custom.vault") {
		t.Errorf("VaultPath = %q", cfg.VaultPath)
	}

	byID := map[string]int{}
	for i, d := range cfg.Connectors {
		byID[d.ID] = i
	}

	i, ok := byID["dropbox"]
	if !ok {
		t.Fatal("dropbox missing after merge")
	}
	if got := cfg.Connectors[i]; got.DisplayName != "Dropbox Business" || got.RedirectPort != 24999 {
		t.Errorf("dropbox override not applied: %+v", got)
	}

	if _, ok := byID["internal-kb"]; !ok {
		t.Error("custom connector not appended")
	}
	if _, ok := byID["atlassian"]; !ok {
		t.Error("builtin atlassian lost in merge")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("connectors: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAtlassianKeepsLegacyVaultKeys(t *testing.T) {
	for _, d := range Default().Connectors {
		if d.ID != "atlassian" {
			continue
		}
		if d.TokenVaultKey != "mcp/atlassian/oauth_token_json" {
			t.Errorf("TokenVaultKey = %q", d.TokenVaultKey)
		}
		if d.ClientVaultKey != "mcp/atlassian/client_json" {
			t.Errorf("ClientVaultKey = %q", d.ClientVaultKey)
		}
		return
	}
	t.Fatal("atlassian not in default catalog")
}

func TestNormalizeConnectorID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"dropbox", "dropbox"},
		{"  Dropbox  ", "dropbox"},
		{"Google Drive", "google-drive"},
		{"--weird--", "weird"},
		{"", ""},
		{"###", ""},
	}
	for _, tc := range cases {
		if got := NormalizeConnectorID(tc.in); got != tc.want {
			t.Errorf("NormalizeConnectorID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
