package connector

import (
	"context"
	"log/slog"

	"github.com/ite-app/trustd/internal/secrets"
)

// Registry holds the configured connectors and fans lifecycle operations
// out to them by id. Connector order follows the configuration file so
// status listings are stable.
type Registry struct {
	order []string
	byID  map[string]*Connector
}

// StatusEntry pairs a connector id with its current status.
type StatusEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Status
}

// RegistryStatus is the aggregate view across all connectors.
type RegistryStatus struct {
	Connectors     []StatusEntry `json:"connectors"`
	ConnectedCount int           `json:"connectedCount"`
	HasAnyToken    bool          `json:"hasAnyToken"`
}

// NewRegistry builds connectors for the given definitions.
func NewRegistry(defs []Definition, sec *secrets.Manager) *Registry {
	r := &Registry{byID: make(map[string]*Connector, len(defs))}
	for _, def := range defs {
		c := New(def, sec)
		r.order = append(r.order, def.ID)
		r.byID[def.ID] = c
	}
	return r
}

// Get returns the connector with the given id.
func (r *Registry) Get(id string) (*Connector, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// All returns the connectors in configuration order.
func (r *Registry) All() []*Connector {
	out := make([]*Connector, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Status aggregates every connector's status.
func (r *Registry) Status() RegistryStatus {
	var rs RegistryStatus
	for _, c := range r.All() {
		st := c.Status()
		rs.Connectors = append(rs.Connectors, StatusEntry{
			ID:          c.ID(),
			DisplayName: c.DisplayName(),
			Status:      st,
		})
		if st.IsConnected {
			rs.ConnectedCount++
		}
		if st.HasStoredToken {
			rs.HasAnyToken = true
		}
	}
	return rs
}

// Connect runs the connect flow for one connector.
func (r *Registry) Connect(ctx context.Context, id string) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}
	return c.Connect(ctx)
}

// Disconnect closes one connector's session, keeping its token.
func (r *Registry) Disconnect(id string) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}
	c.Disconnect()
	return nil
}

// Logout deletes one connector's stored token.
func (r *Registry) Logout(id string) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}
	return c.Logout()
}

// ClearAll wipes one connector's token and client registration.
func (r *Registry) ClearAll(id string) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}
	return c.ClearAll()
}

// Tools lists the tools of one connected connector.
func (r *Registry) Tools(ctx context.Context, id string) ([]ToolInfo, error) {
	c, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return c.Tools(ctx)
}

// CallTool invokes a tool on one connected connector.
func (r *Registry) CallTool(ctx context.Context, id, tool string, args map[string]any) (string, error) {
	c, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return c.CallTool(ctx, tool, args)
}

// RefreshStored resumes every connector holding a stored token. Failures
// are isolated per connector; a revoked token on one service never blocks
// the others.
func (r *Registry) RefreshStored(ctx context.Context) {
	for _, c := range r.All() {
		if _, err := c.loadToken(); err != nil {
			continue
		}
		if err := c.resume(ctx); err != nil {
			slog.Warn("stored session not resumed", "connector", c.ID())
		}
	}
}

// Shutdown disconnects every connector, closing live sessions.
func (r *Registry) Shutdown() {
	for _, c := range r.All() {
		c.Disconnect()
	}
}
