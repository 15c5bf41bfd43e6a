package connector

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) (*Registry, []Definition) {
	t.Helper()
	defs := []Definition{
		{ID: "googledrive", DisplayName: "Google Drive", RedirectPort: 23901},
		{ID: "dropbox", DisplayName: "Dropbox", RedirectPort: 23902},
		{ID: "atlassian", DisplayName: "Atlassian",
			TokenVaultKey:  "mcp/atlassian/oauth_token_json",
			ClientVaultKey: "mcp/atlassian/client_json",
			RedirectPort:   23903,
		},
	}
	return NewRegistry(defs, newTestSecrets(t)), defs
}

func TestRegistryUnknownID(t *testing.T) {
	r, _ := newTestRegistry(t)

	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
	if err := r.Logout("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Logout err = %v, want ErrNotFound", err)
	}
	if _, err := r.Tools(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Tools err = %v, want ErrNotFound", err)
	}
}

func TestRegistryPreservesOrder(t *testing.T) {
	r, defs := newTestRegistry(t)

	all := r.All()
	if len(all) != len(defs) {
		t.Fatalf("len(All) = %d, want %d", len(all), len(defs))
	}
	for i, c := range all {
		if c.ID() != defs[i].ID {
			t.Errorf("connector %d = %s, want %s", i, c.ID(), defs[i].ID)
		}
	}
}

func TestRegistryStatusAggregation(t *testing.T) {
	r, _ := newTestRegistry(t)

	st := r.Status()
	if st.ConnectedCount != 0 || st.HasAnyToken {
		t.Fatalf("fresh status = %+v, want empty", st)
	}
	if len(st.Connectors) != 3 {
		t.Fatalf("len(Connectors) = %d, want 3", len(st.Connectors))
	}

	// Seed a stored token for one connector.
	dropbox, err := r.Get("dropbox")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	storeToken(t, dropbox.secrets, dropbox.def, Token{
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	})

	st = r.Status()
	if !st.HasAnyToken {
		t.Error("HasAnyToken should be true after seeding a token")
	}
	if st.ConnectedCount != 0 {
		t.Errorf("ConnectedCount = %d, want 0 (token stored but no session)", st.ConnectedCount)
	}
	for _, e := range st.Connectors {
		wantToken := e.ID == "dropbox"
		if e.HasStoredToken != wantToken {
			t.Errorf("connector %s HasStoredToken = %v, want %v", e.ID, e.HasStoredToken, wantToken)
		}
	}
}

func TestRegistryLogoutIsolation(t *testing.T) {
	r, _ := newTestRegistry(t)

	drive, _ := r.Get("googledrive")
	dropbox, _ := r.Get("dropbox")
	storeToken(t, drive.secrets, drive.def, Token{AccessToken: "at-drive"})
	storeToken(t, dropbox.secrets, dropbox.def, Token{AccessToken: "at-dropbox"})

	if err := r.Logout("googledrive"); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if st := drive.Status(); st.HasStoredToken {
		t.Error("googledrive token should be gone")
	}
	if st := dropbox.Status(); !st.HasStoredToken {
		t.Error("dropbox token should be untouched")
	}
}
