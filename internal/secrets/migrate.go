package secrets

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ite-app/trustd/internal/keychain"
)

// The predecessor architecture kept every secret as its own secure-store
// entry. LegacyMigrator moves those entries into the vault and deletes the
// originals. It is transitional and self-contained so it can be removed
// wholesale once no installs remain on the old scheme.

// legacyMappings are the fixed single-entry migrations: old secure-store key
// to new vault key.
var legacyMappings = []struct {
	old string
	new string
}{
	{"ai:api_keys_bundle", "ai/api_keys_bundle"},
	{"mcp:oauth_token", "mcp/atlassian/oauth_token_json"},
	{"mcp:client_id", "mcp/atlassian/client_json"},
	{"notion:integration_token", "notion/integration_token"},
	{"mcp:notion_config", "mcp/notion/config_json"},
}

// legacyConnectorIDs are the connector ids the old scheme may have stored
// tokens for, under "connector:<id>".
var legacyConnectorIDs = []string{
	"googledrive",
	"gmail",
	"dropbox",
	"onedrive",
	"sharepoint",
	"slack",
	"github",
	"atlassian",
	"notion",
}

// MigrationResult summarizes a migration run.
type MigrationResult struct {
	Migrated int      `json:"migrated"`
	Failed   int      `json:"failed"`
	Details  []string `json:"details"`
}

// LegacyMigrator reads old per-secret secure-store entries and writes them
// into the vault. Besides the master key, this is the only place a
// secure-store read happens.
type LegacyMigrator struct {
	kc  keychain.Keychain
	mgr *Manager
}

// NewLegacyMigrator creates a migrator over the given keychain and manager.
func NewLegacyMigrator(kc keychain.Keychain, mgr *Manager) *LegacyMigrator {
	return &LegacyMigrator{kc: kc, mgr: mgr}
}

// Run migrates every known legacy entry that still exists. One entry's
// failure never aborts the rest; each successful entry is deleted from the
// secure store, so a second run migrates nothing further.
func (l *LegacyMigrator) Run() (MigrationResult, error) {
	if _, err := l.mgr.Initialize(); err != nil {
		return MigrationResult{}, err
	}

	var res MigrationResult
	for _, m := range legacyMappings {
		l.migrateOne(m.old, m.new, &res)
	}
	for _, id := range legacyConnectorIDs {
		l.migrateOne("connector:"+id, "connector/"+id+"/token_json", &res)
	}

	slog.Info("legacy migration finished", "migrated", res.Migrated, "failed", res.Failed)
	return res, nil
}

func (l *LegacyMigrator) migrateOne(oldKey, newKey string, res *MigrationResult) {
	value, err := l.kc.Get(keychain.Service, oldKey)
	if errors.Is(err, keychain.ErrNotFound) {
		return
	}
	if err != nil {
		res.Failed++
		res.Details = append(res.Details, fmt.Sprintf("%s: read failed: %v", oldKey, err))
		return
	}

	if err := l.mgr.Set(newKey, value); err != nil {
		res.Failed++
		res.Details = append(res.Details, fmt.Sprintf("%s: vault write failed: %v", oldKey, err))
		return
	}

	// Best effort: a leftover legacy entry only means the next run re-copies
	// an identical value.
	if err := l.kc.Delete(keychain.Service, oldKey); err != nil && !errors.Is(err, keychain.ErrNotFound) {
		slog.Warn("legacy entry not deleted", "key", oldKey)
	}

	res.Migrated++
	res.Details = append(res.Details, fmt.Sprintf("%s -> %s", oldKey, newKey))
}
