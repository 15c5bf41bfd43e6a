// Package config loads the workstation trust-layer configuration: vault
// location, secure-store service name, and the connector catalog. The file
// is YAML and optional; a missing file yields the built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ite-app/trustd/internal/connector"
)

// Config is the root configuration.
type Config struct {
	// VaultPath is the encrypted vault file. Defaults to ~/.ite/secrets.vault.
	VaultPath string `yaml:"vaultPath"`

	// KeychainService is the platform secure-store service name the master
	// key is registered under.
	KeychainService string `yaml:"keychainService"`

	// Connectors is the catalog of external services. Entries here extend
	// or override the built-in catalog by id.
	Connectors []connector.Definition `yaml:"connectors"`
}

// Load reads the config file at path, applying defaults for anything the
// file leaves out. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fileCfg.VaultPath != "" {
		cfg.VaultPath = expandHome(fileCfg.VaultPath)
	}
	if fileCfg.KeychainService != "" {
		cfg.KeychainService = fileCfg.KeychainService
	}
	cfg.Connectors = mergeConnectors(cfg.Connectors, fileCfg.Connectors)

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		VaultPath:       expandHome("~/.ite/secrets.vault"),
		KeychainService: "com.ite.app",
		Connectors:      builtinConnectors(),
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	return expandHome("~/.ite/config.yaml")
}

// mergeConnectors overlays file entries on the built-in catalog by id.
// Unknown ids are appended in file order.
func mergeConnectors(base, overlay []connector.Definition) []connector.Definition {
	index := make(map[string]int, len(base))
	out := make([]connector.Definition, len(base))
	copy(out, base)
	for i, d := range out {
		index[d.ID] = i
	}
	for _, d := range overlay {
		if i, ok := index[d.ID]; ok {
			out[i] = d
		} else {
			index[d.ID] = len(out)
			out = append(out, d)
		}
	}
	return out
}

// builtinConnectors is the default service catalog. Atlassian keeps the
// vault keys it used before the connector namespace existed.
func builtinConnectors() []connector.Definition {
	return []connector.Definition{
		{
			ID:              "atlassian",
			DisplayName:     "Atlassian",
			AuthURL:         "https://mcp.atlassian.com/v1/authorize",
			TokenURL:        "https://mcp.atlassian.com/v1/token",
			RegistrationURL: "https://mcp.atlassian.com/v1/register",
			ToolEndpoint:    "https://mcp.atlassian.com/v1/sse",
			RedirectPort:    23456,
			TokenVaultKey:   "mcp/atlassian/oauth_token_json",
			ClientVaultKey:  "mcp/atlassian/client_json",
		},
		{
			ID:           "googledrive",
			DisplayName:  "Google Drive",
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			Scopes:       []string{"https://www.googleapis.com/auth/drive.readonly"},
			RedirectPort: 23457,
		},
		{
			ID:           "gmail",
			DisplayName:  "Gmail",
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			Scopes:       []string{"https://www.googleapis.com/auth/gmail.readonly"},
			RedirectPort: 23458,
		},
		{
			ID:           "dropbox",
			DisplayName:  "Dropbox",
			AuthURL:      "https://www.dropbox.com/oauth2/authorize",
			TokenURL:     "https://api.dropboxapi.com/oauth2/token",
			RedirectPort: 23459,
		},
		{
			ID:           "onedrive",
			DisplayName:  "OneDrive",
			AuthURL:      "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			Scopes:       []string{"Files.Read", "offline_access"},
			RedirectPort: 23460,
		},
		{
			ID:           "sharepoint",
			DisplayName:  "SharePoint",
			AuthURL:      "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			Scopes:       []string{"Sites.Read.All", "offline_access"},
			RedirectPort: 23461,
		},
		{
			ID:           "slack",
			DisplayName:  "Slack",
			AuthURL:      "https://slack.com/oauth/v2/authorize",
			TokenURL:     "https://slack.com/api/oauth.v2.access",
			RedirectPort: 23462,
		},
		{
			ID:           "github",
			DisplayName:  "GitHub",
			AuthURL:      "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			Scopes:       []string{"repo"},
			RedirectPort: 23463,
		},
		{
			ID:           "notion",
			DisplayName:  "Notion",
			AuthURL:      "https://api.notion.com/v1/oauth/authorize",
			TokenURL:     "https://api.notion.com/v1/oauth/token",
			RedirectPort: 23464,
		},
	}
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
