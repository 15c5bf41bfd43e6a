package connector

import (
	"time"

	"golang.org/x/oauth2"
)

// Token is the persisted credential for one connector, stored JSON-encoded
// as a single vault entry owned by the issuing connector.
type Token struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"` // epoch seconds; 0 = no known expiry
	TokenType    string `json:"tokenType,omitempty"`
}

// fromOAuth2 converts an exchange/refresh result. oauth2 carries an empty
// refresh token when the provider did not rotate it, so prev fills the gap.
func fromOAuth2(t *oauth2.Token, prev Token) Token {
	tok := Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = prev.RefreshToken
	}
	if !t.Expiry.IsZero() {
		tok.ExpiresAt = t.Expiry.Unix()
	}
	return tok
}

// expiresIn returns the seconds until expiry, or 0 when the token carries no
// expiry. Negative values mean the token is already expired.
func (t Token) expiresIn(now time.Time) int64 {
	if t.ExpiresAt == 0 {
		return 0
	}
	return t.ExpiresAt - now.Unix()
}

// needsRefresh reports whether the token is within margin of expiry.
func (t Token) needsRefresh(now time.Time, margin time.Duration) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return now.Add(margin).Unix() >= t.ExpiresAt
}

// Status is the ephemeral view of one connector, recomputed from token
// presence and in-memory flow state. Never persisted.
type Status struct {
	IsConnected    bool   `json:"isConnected"`
	IsConnecting   bool   `json:"isConnecting"`
	Error          string `json:"error,omitempty"`
	HasStoredToken bool   `json:"hasStoredToken"`
	TokenExpiresIn int64  `json:"tokenExpiresIn,omitempty"`
}
