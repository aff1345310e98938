package identity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultSkew treats a token as stale this long before it expires.
const DefaultSkew = 5 * time.Minute

// Token is an access token plus the material needed to renew it.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsStale reports whether now+skew has reached the expiry. A token without
// an access token is always stale; one without an expiry never is.
func (t *Token) IsStale(now time.Time, skew time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(t.ExpiresAt)
}

// OAuth2 converts to an oauth2.Token; the id token travels in Extra.
func (t *Token) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
	if t.IDToken != "" {
		tok = tok.WithExtra(map[string]any{"id_token": t.IDToken})
	}
	return tok
}

// FromOAuth2 converts an oauth2.Token, e.g. one persisted by older tooling.
func FromOAuth2(tok *oauth2.Token) *Token {
	if tok == nil {
		return nil
	}
	t := &Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		t.IDToken = id
	}
	return t
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    json.Number `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
	IDToken      string      `json:"id_token"`
	Scope        string      `json:"scope"`
}

// parseTokenResponse decodes a token endpoint reply. expires_in may be a
// number or a numeric string.
func parseTokenResponse(body []byte, now time.Time) (*Token, error) {
	var raw tokenResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenResponse, err)
	}
	if raw.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access_token", ErrTokenResponse)
	}
	tok := &Token{
		AccessToken:  raw.AccessToken,
		TokenType:    raw.TokenType,
		RefreshToken: raw.RefreshToken,
		IDToken:      raw.IDToken,
		Scopes:       strings.Fields(raw.Scope),
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if raw.ExpiresIn != "" {
		secs, err := raw.ExpiresIn.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: expires_in %q: %w", ErrTokenResponse, raw.ExpiresIn, err)
		}
		tok.ExpiresAt = now.Add(time.Duration(secs) * time.Second)
	}
	return tok, nil
}
