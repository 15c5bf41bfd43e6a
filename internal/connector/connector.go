// Package connector manages the OAuth lifecycle of external knowledge-base
// services: PKCE authorization, autonomous token refresh, and the live MCP
// tool session of a connected service. Tokens are persisted through the
// secrets manager and never leave this package in logs or errors.
package connector

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/ite-app/trustd/internal/secrets"
)

// refreshMargin is the safety window before expiry that triggers a refresh.
const refreshMargin = 60 * time.Second

// Definition declares one external service: its OAuth endpoints and, when
// the service exposes tools over MCP, the tool endpoint.
type Definition struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"displayName" json:"displayName"`

	AuthURL  string   `yaml:"authUrl" json:"-"`
	TokenURL string   `yaml:"tokenUrl" json:"-"`
	Scopes   []string `yaml:"scopes,omitempty" json:"-"`

	// ClientID is set for providers with a pre-registered client.
	// RegistrationURL enables RFC 7591 dynamic registration instead.
	ClientID        string `yaml:"clientId,omitempty" json:"-"`
	RegistrationURL string `yaml:"registrationUrl,omitempty" json:"-"`

	// RedirectPort is the loopback port for the authorization callback.
	RedirectPort int `yaml:"redirectPort" json:"-"`

	// ToolEndpoint is the MCP streamable-HTTP endpoint, when the service
	// exposes one.
	ToolEndpoint string `yaml:"toolEndpoint,omitempty" json:"-"`

	// TokenVaultKey and ClientVaultKey override the default vault keys.
	// Services migrated from the mcp/ namespace keep their historical keys.
	TokenVaultKey  string `yaml:"tokenVaultKey,omitempty" json:"-"`
	ClientVaultKey string `yaml:"clientVaultKey,omitempty" json:"-"`
}

func (d Definition) tokenKey() string {
	if d.TokenVaultKey != "" {
		return d.TokenVaultKey
	}
	return "connector/" + d.ID + "/token_json"
}

func (d Definition) clientKey() string {
	if d.ClientVaultKey != "" {
		return d.ClientVaultKey
	}
	return "connector/" + d.ID + "/client_json"
}

func (d Definition) redirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", d.RedirectPort)
}

// registeredClient is the persisted result of dynamic client registration,
// stored under the connector's client vault key.
type registeredClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// flowState exists only while an authorization flow is in flight. At most
// one per connector at any time.
type flowState struct {
	id        uuid.UUID
	verifier  string
	state     string
	clientID  string
	startedAt time.Time
}

// Connector drives the OAuth lifecycle of one external service.
type Connector struct {
	// AuthURLHandler surfaces the authorization URL to the user (open a
	// browser, print to the terminal). Set before first use.
	AuthURLHandler func(authURL string)

	// HTTPClient overrides the client used for registration and token
	// endpoints. Nil means http.DefaultClient.
	HTTPClient *http.Client

	def     Definition
	secrets *secrets.Manager
	retry   RetryConfig
	now     func() time.Time

	mu         sync.Mutex
	connecting bool
	connected  bool
	lastErr    string
	flow       *flowState
	session    *Session

	refresh singleflight.Group
}

// New creates a connector in the Disconnected state.
func New(def Definition, sec *secrets.Manager) *Connector {
	return &Connector{
		def:     def,
		secrets: sec,
		retry:   DefaultRetryConfig(),
		now:     time.Now,
	}
}

// ID returns the connector id.
func (c *Connector) ID() string { return c.def.ID }

// DisplayName returns the human-readable service name.
func (c *Connector) DisplayName() string { return c.def.DisplayName }

// Status recomputes the ephemeral connector view from in-memory flow flags
// and stored-token presence. Cache-only; never touches the network.
func (c *Connector) Status() Status {
	c.mu.Lock()
	st := Status{
		IsConnected:  c.connected,
		IsConnecting: c.connecting,
		Error:        c.lastErr,
	}
	c.mu.Unlock()

	tok, err := c.loadToken()
	if err == nil {
		st.HasStoredToken = true
		st.TokenExpiresIn = tok.expiresIn(c.now())
	}
	return st
}

// BeginAuth starts a PKCE authorization flow and returns the authorization
// URL. A second call while a flow is pending is rejected immediately with
// ErrAuthFlowInProgress; there is no queuing.
func (c *Connector) BeginAuth(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		return "", ErrAuthFlowInProgress
	}
	c.connecting = true
	c.lastErr = ""
	c.mu.Unlock()

	clientID, err := c.ensureClient(ctx)
	if err != nil {
		c.failFlow(err)
		return "", err
	}

	verifier := oauth2.GenerateVerifier()
	state, err := randomState()
	if err != nil {
		c.failFlow(err)
		return "", err
	}

	flow := &flowState{
		id:        uuid.Must(uuid.NewV7()),
		verifier:  verifier,
		state:     state,
		clientID:  clientID,
		startedAt: c.now(),
	}

	c.mu.Lock()
	c.flow = flow
	c.mu.Unlock()

	authURL := c.oauthConfig(clientID).AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	slog.Info("authorization flow started", "connector", c.def.ID, "flow", flow.id)
	return authURL, nil
}

// CompleteAuth validates the callback against the pending flow state,
// exchanges the code for tokens, and persists them. A state mismatch is a
// hard failure; the flow is cleared either way.
func (c *Connector) CompleteAuth(ctx context.Context, code, state string) error {
	c.mu.Lock()
	flow := c.flow
	c.mu.Unlock()

	if flow == nil {
		return &ExchangeError{Reason: "no pending authorization flow"}
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(flow.state)) != 1 {
		err := &ExchangeError{Reason: "state mismatch"}
		c.failFlow(err)
		return err
	}

	tok, err := c.oauthConfig(flow.clientID).Exchange(c.httpContext(ctx), code,
		oauth2.VerifierOption(flow.verifier))
	if err != nil {
		werr := &ExchangeError{Reason: "code exchange failed", Err: err}
		c.failFlow(werr)
		return werr
	}

	stored := fromOAuth2(tok, Token{})
	if err := c.saveToken(stored); err != nil {
		c.failFlow(err)
		return err
	}

	var session *Session
	if c.def.ToolEndpoint != "" {
		session, err = openSession(ctx, c.def.ID, c.def.ToolEndpoint, stored.AccessToken)
		if err != nil {
			c.failFlow(err)
			return err
		}
	}

	c.mu.Lock()
	c.connected = true
	c.connecting = false
	c.flow = nil
	c.lastErr = ""
	c.session = session
	c.mu.Unlock()

	slog.Info("connector authorized", "connector", c.def.ID, "flow", flow.id)
	return nil
}

// CancelAuth aborts a pending flow (the user closed it). No-op when no flow
// is pending.
func (c *Connector) CancelAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flow == nil && !c.connecting {
		return
	}
	c.flow = nil
	c.connecting = false
	slog.Info("authorization flow cancelled", "connector", c.def.ID)
}

// Connect brings the connector to Connected: resuming from a stored token
// when one exists, otherwise running the interactive authorization flow
// (callback listener, browser hand-off, code exchange).
func (c *Connector) Connect(ctx context.Context) error {
	if _, err := c.loadToken(); err == nil {
		if err := c.resume(ctx); err == nil {
			return nil
		} else if isTransientRefresh(err) {
			return err
		}
		// Permanent refresh failure deleted the token; fall through to a
		// fresh interactive flow since the user explicitly asked to connect.
	}

	authURL, err := c.BeginAuth(ctx)
	if err != nil {
		return err
	}

	srv, err := startCallbackServer(c.def.RedirectPort)
	if err != nil {
		c.failFlow(err)
		return err
	}
	defer srv.Close()

	if c.AuthURLHandler != nil {
		c.AuthURLHandler(authURL)
	}

	code, state, err := srv.Wait(ctx)
	if err != nil {
		c.failFlow(err)
		return err
	}
	return c.CompleteAuth(ctx, code, state)
}

// resume refreshes a stored token if needed and opens the tool session.
func (c *Connector) resume(ctx context.Context) error {
	tok, err := c.EnsureFreshToken(ctx)
	if err != nil {
		return err
	}

	var session *Session
	if c.def.ToolEndpoint != "" {
		session, err = openSession(ctx, c.def.ID, c.def.ToolEndpoint, tok.AccessToken)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.connected = true
	c.lastErr = ""
	c.session = session
	c.mu.Unlock()

	slog.Info("connector resumed from stored token", "connector", c.def.ID)
	return nil
}

// EnsureFreshToken returns a token valid for at least the refresh margin,
// refreshing it first when necessary. Concurrent callers are joined: while
// one refresh is in flight a second call awaits and receives the same
// result, so providers that rotate refresh tokens on use never see a
// duplicate request.
func (c *Connector) EnsureFreshToken(ctx context.Context) (Token, error) {
	v, err, _ := c.refresh.Do("refresh", func() (any, error) {
		tok, err := c.loadToken()
		if err != nil {
			return Token{}, err
		}
		if !tok.needsRefresh(c.now(), refreshMargin) {
			return tok, nil
		}
		return c.refreshToken(ctx, tok)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// refreshToken exchanges the refresh token for a new access token.
// Transient failures are retried with jittered exponential backoff and keep
// the stored token; permanent ones delete it and disconnect.
func (c *Connector) refreshToken(ctx context.Context, tok Token) (Token, error) {
	if tok.RefreshToken == "" {
		err := &RefreshError{Err: errors.New("token expired and no refresh token stored")}
		c.dropToken()
		return Token{}, err
	}

	clientID, err := c.ensureClient(ctx)
	if err != nil {
		return Token{}, err
	}

	var fresh *oauth2.Token
	err = retryTransient(ctx, c.retry, func() error {
		src := c.oauthConfig(clientID).TokenSource(c.httpContext(ctx),
			&oauth2.Token{RefreshToken: tok.RefreshToken})
		t, err := src.Token()
		if err != nil {
			return classifyRefreshError(err)
		}
		fresh = t
		return nil
	})

	var re *RefreshError
	if errors.As(err, &re) && !re.Transient {
		c.dropToken()
		return Token{}, err
	}
	if err != nil {
		c.mu.Lock()
		c.lastErr = "token refresh failed"
		c.mu.Unlock()
		slog.Warn("token refresh failed transiently", "connector", c.def.ID)
		return Token{}, err
	}

	stored := fromOAuth2(fresh, tok)
	if err := c.saveToken(stored); err != nil {
		return Token{}, err
	}

	slog.Info("token refreshed", "connector", c.def.ID)
	return stored, nil
}

// Disconnect closes the live session without touching the stored token.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.connected = false
	c.connecting = false
	c.flow = nil
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
	slog.Info("connector disconnected", "connector", c.def.ID)
}

// Logout deletes the stored token and disconnects. Isolated per connector.
func (c *Connector) Logout() error {
	c.Disconnect()
	if err := c.secrets.Delete(c.def.tokenKey()); err != nil {
		return err
	}
	slog.Info("connector logged out", "connector", c.def.ID)
	return nil
}

// ClearAll deletes the token and the cached client registration. The
// stronger reset, used when the registration is known-stale (client id
// mismatch against the provider).
func (c *Connector) ClearAll() error {
	c.Disconnect()
	if err := c.secrets.Delete(c.def.tokenKey(), c.def.clientKey()); err != nil {
		return err
	}
	slog.Info("connector reset", "connector", c.def.ID)
	return nil
}

// Tools returns the connected session's tool list.
func (c *Connector) Tools(ctx context.Context) ([]ToolInfo, error) {
	c.mu.Lock()
	session := c.session
	connected := c.connected
	c.mu.Unlock()

	if !connected || session == nil {
		return nil, ErrNotConnected
	}

	tools := session.Tools()
	out := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolInfo{Name: t.Name, Description: t.Description})
	}
	return out, nil
}

// CallTool invokes a tool on the live session.
func (c *Connector) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.Lock()
	session := c.session
	connected := c.connected
	c.mu.Unlock()

	if !connected || session == nil {
		return "", ErrNotConnected
	}
	return session.CallTool(ctx, name, args)
}

// ToolInfo is the registry-facing view of one MCP tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// --- internals ---

// ensureClient returns the OAuth client id: static from the definition,
// cached from a previous dynamic registration, or freshly registered.
func (c *Connector) ensureClient(ctx context.Context) (string, error) {
	if c.def.ClientID != "" {
		return c.def.ClientID, nil
	}

	if raw, ok, err := c.secrets.Get(c.def.clientKey()); err != nil {
		return "", err
	} else if ok {
		var rc registeredClient
		if json.Unmarshal([]byte(raw), &rc) == nil && rc.ClientID != "" {
			return rc.ClientID, nil
		}
		// Undecodable registration metadata: re-register below.
	}

	if c.def.RegistrationURL == "" {
		return "", fmt.Errorf("connector %s: no client id and no registration endpoint", c.def.ID)
	}

	rc, err := c.registerClient(ctx)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(rc)
	if err != nil {
		return "", err
	}
	if err := c.secrets.Set(c.def.clientKey(), string(raw)); err != nil {
		return "", err
	}
	return rc.ClientID, nil
}

// registerClient performs RFC 7591 dynamic client registration.
func (c *Connector) registerClient(ctx context.Context) (registeredClient, error) {
	body, err := json.Marshal(map[string]any{
		"client_name":                "ITE - Integrated Translation Editor",
		"redirect_uris":              []string{c.def.redirectURI()},
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"token_endpoint_auth_method": "none",
	})
	if err != nil {
		return registeredClient{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.def.RegistrationURL, bytes.NewReader(body))
	if err != nil {
		return registeredClient{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return registeredClient{}, fmt.Errorf("connector %s: client registration: %w", c.def.ID, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return registeredClient{}, fmt.Errorf("connector %s: client registration returned %d", c.def.ID, res.StatusCode)
	}

	var rc registeredClient
	if err := json.NewDecoder(res.Body).Decode(&rc); err != nil {
		return registeredClient{}, fmt.Errorf("connector %s: decode registration response: %w", c.def.ID, err)
	}
	if rc.ClientID == "" {
		return registeredClient{}, fmt.Errorf("connector %s: registration response missing client_id", c.def.ID)
	}

	slog.Info("oauth client registered", "connector", c.def.ID)
	return rc, nil
}

func (c *Connector) oauthConfig(clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.def.AuthURL,
			TokenURL:  c.def.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: c.def.redirectURI(),
		Scopes:      c.def.Scopes,
	}
}

func (c *Connector) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// httpContext injects the override client into oauth2 calls.
func (c *Connector) httpContext(ctx context.Context) context.Context {
	if c.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
}

func (c *Connector) loadToken() (Token, error) {
	raw, ok, err := c.secrets.Get(c.def.tokenKey())
	if err != nil {
		return Token{}, err
	}
	if !ok {
		return Token{}, ErrNoToken
	}
	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return Token{}, fmt.Errorf("connector %s: stored token undecodable", c.def.ID)
	}
	return tok, nil
}

func (c *Connector) saveToken(tok Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return c.secrets.Set(c.def.tokenKey(), string(raw))
}

// dropToken removes the stored token after a permanent refresh failure and
// moves the connector to Disconnected. The user must reconnect.
func (c *Connector) dropToken() {
	if err := c.secrets.Delete(c.def.tokenKey()); err != nil {
		slog.Error("failed to delete revoked token", "connector", c.def.ID)
	}

	c.mu.Lock()
	session := c.session
	c.session = nil
	c.connected = false
	c.lastErr = "reconnect required"
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
	slog.Warn("stored token revoked, reconnect required", "connector", c.def.ID)
}

// failFlow clears pending flow state after an error.
func (c *Connector) failFlow(err error) {
	c.mu.Lock()
	c.flow = nil
	c.connecting = false
	c.lastErr = err.Error()
	c.mu.Unlock()
	slog.Warn("authorization flow failed", "connector", c.def.ID, "reason", err.Error())
}

// classifyRefreshError splits refresh failures into permanent (the grant is
// gone, re-auth required) and transient (worth retrying). Only an explicit
// revocation error code is permanent: rate limits (429), timeouts, and other
// provider hiccups must never destroy a stored grant.
func classifyRefreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return &RefreshError{Err: err}
		}
	}
	return &RefreshError{Transient: true, Err: err}
}

func isTransientRefresh(err error) bool {
	var re *RefreshError
	return errors.As(err, &re) && re.Transient
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
