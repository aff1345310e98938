package identity

import (
	"context"
	"net/url"
)

// AuthorizationCodeCredential redeems an authorization code. Confidential
// clients set ClientSecret or Assertion; public clients rely on the PKCE
// CodeVerifier alone.
type AuthorizationCodeCredential struct {
	ClientID     string
	Code         string
	RedirectURI  string
	CodeVerifier string
	ClientSecret string
	Assertion    AssertionFunc
	Authority    Authority
	Scopes       []string
}

func (c *AuthorizationCodeCredential) validate() error {
	switch {
	case c.ClientID == "":
		return missing("client_id")
	case c.Code == "":
		return missing("code")
	case c.RedirectURI == "":
		return missing("redirect_uri")
	case c.ClientSecret == "" && c.Assertion == nil && c.CodeVerifier == "":
		return missing("client_secret")
	}
	return nil
}

// CacheID implements Credential.
func (c *AuthorizationCodeCredential) CacheID() string {
	return cacheID(c.ClientID, c.Authority, c.Scopes, grantAuthorizationCode)
}

// TokenRequest implements Credential.
func (c *AuthorizationCodeCredential) TokenRequest(ctx context.Context) (*TokenRequest, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	form := url.Values{
		"grant_type":   {grantAuthorizationCode},
		"client_id":    {c.ClientID},
		"code":         {c.Code},
		"redirect_uri": {c.RedirectURI},
	}
	if len(c.Scopes) > 0 {
		form.Set("scope", scopeParam(c.Scopes))
	}
	if c.CodeVerifier != "" {
		form.Set("code_verifier", c.CodeVerifier)
	}
	if err := addClientAuth(ctx, form, c.ClientSecret, c.Assertion); err != nil {
		return nil, err
	}
	return &TokenRequest{Endpoint: c.Authority.TokenEndpoint(), Form: form}, nil
}

func (c *AuthorizationCodeCredential) singleUse() bool { return true }

func (c *AuthorizationCodeCredential) refreshCredential(refreshToken string) *RefreshTokenCredential {
	return &RefreshTokenCredential{
		ClientID:     c.ClientID,
		RefreshToken: refreshToken,
		ClientSecret: c.ClientSecret,
		Assertion:    c.Assertion,
		Authority:    c.Authority,
		Scopes:       c.Scopes,
	}
}

// addClientAuth adds confidential client material to a form.
func addClientAuth(ctx context.Context, form url.Values, secret string, assertion AssertionFunc) error {
	switch {
	case secret != "":
		form.Set("client_secret", secret)
	case assertion != nil:
		signed, err := assertion(ctx)
		if err != nil {
			return err
		}
		form.Set("client_assertion_type", clientAssertionType)
		form.Set("client_assertion", signed)
	}
	return nil
}

// ResourceOwnerPasswordCredential is the ROPC grant. It only works against
// an organizational tenant.
type ResourceOwnerPasswordCredential struct {
	ClientID     string
	Username     string
	Password     string
	ClientSecret string
	Authority    Authority
	Scopes       []string
}

// NewResourceOwnerPasswordCredential validates and returns the credential.
// The authority is checked here so no request is ever built for common,
// consumers or adfs.
func NewResourceOwnerPasswordCredential(clientID, username, password string, authority Authority, scopes []string) (*ResourceOwnerPasswordCredential, error) {
	c := &ResourceOwnerPasswordCredential{ClientID: clientID, Username: username, Password: password, Authority: authority, Scopes: scopes}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ResourceOwnerPasswordCredential) validate() error {
	switch {
	case !c.Authority.allowsROPC():
		return ErrInvalidAuthority
	case c.ClientID == "":
		return missing("client_id")
	case c.Username == "":
		return missing("username")
	case c.Password == "":
		return missing("password")
	case len(c.Scopes) == 0:
		return missing("scope")
	}
	return nil
}

// CacheID implements Credential.
func (c *ResourceOwnerPasswordCredential) CacheID() string {
	return cacheID(c.ClientID, c.Authority, c.Scopes, grantPassword, c.Username)
}

// TokenRequest implements Credential.
func (c *ResourceOwnerPasswordCredential) TokenRequest(context.Context) (*TokenRequest, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	form := url.Values{
		"grant_type": {grantPassword},
		"client_id":  {c.ClientID},
		"username":   {c.Username},
		"password":   {c.Password},
		"scope":      {scopeParam(c.Scopes)},
	}
	if c.ClientSecret != "" {
		form.Set("client_secret", c.ClientSecret)
	}
	return &TokenRequest{Endpoint: c.Authority.TokenEndpoint(), Form: form}, nil
}

func (c *ResourceOwnerPasswordCredential) refreshCredential(refreshToken string) *RefreshTokenCredential {
	return &RefreshTokenCredential{
		ClientID:     c.ClientID,
		RefreshToken: refreshToken,
		ClientSecret: c.ClientSecret,
		Authority:    c.Authority,
		Scopes:       c.Scopes,
	}
}

// DeviceCodeCredential redeems a device code once the user has signed in.
type DeviceCodeCredential struct {
	ClientID   string
	DeviceCode string
	Authority  Authority
	Scopes     []string
}

func (c *DeviceCodeCredential) validate() error {
	switch {
	case c.ClientID == "":
		return missing("client_id")
	case c.DeviceCode == "":
		return missing("device_code")
	}
	return nil
}

// CacheID implements Credential.
func (c *DeviceCodeCredential) CacheID() string {
	return cacheID(c.ClientID, c.Authority, c.Scopes, grantDeviceCode)
}

// TokenRequest implements Credential.
func (c *DeviceCodeCredential) TokenRequest(context.Context) (*TokenRequest, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &TokenRequest{
		Endpoint: c.Authority.TokenEndpoint(),
		Form: url.Values{
			"grant_type":  {grantDeviceCode},
			"client_id":   {c.ClientID},
			"device_code": {c.DeviceCode},
		},
	}, nil
}

func (c *DeviceCodeCredential) singleUse() bool { return true }

func (c *DeviceCodeCredential) refreshCredential(refreshToken string) *RefreshTokenCredential {
	return &RefreshTokenCredential{ClientID: c.ClientID, RefreshToken: refreshToken, Authority: c.Authority, Scopes: c.Scopes}
}

// RefreshTokenCredential renews a token with a refresh token.
type RefreshTokenCredential struct {
	ClientID     string
	RefreshToken string
	ClientSecret string
	Assertion    AssertionFunc
	Authority    Authority
	Scopes       []string
}

func (c *RefreshTokenCredential) validate() error {
	switch {
	case c.ClientID == "":
		return missing("client_id")
	case c.RefreshToken == "":
		return missing("refresh_token")
	}
	return nil
}

// CacheID implements Credential.
func (c *RefreshTokenCredential) CacheID() string {
	return cacheID(c.ClientID, c.Authority, c.Scopes, grantRefreshToken)
}

// TokenRequest implements Credential.
func (c *RefreshTokenCredential) TokenRequest(ctx context.Context) (*TokenRequest, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	form := url.Values{
		"grant_type":    {grantRefreshToken},
		"client_id":     {c.ClientID},
		"refresh_token": {c.RefreshToken},
	}
	if len(c.Scopes) > 0 {
		form.Set("scope", scopeParam(c.Scopes))
	}
	if err := addClientAuth(ctx, form, c.ClientSecret, c.Assertion); err != nil {
		return nil, err
	}
	return &TokenRequest{Endpoint: c.Authority.TokenEndpoint(), Form: form}, nil
}

// refreshCredential lets a session built around a persisted refresh token
// pick up the rotated token from the cache.
func (c *RefreshTokenCredential) refreshCredential(refreshToken string) *RefreshTokenCredential {
	next := *c
	next.RefreshToken = refreshToken
	return &next
}

// refresher is implemented by credentials whose tokens can be renewed with
// a refresh token.
type refresher interface {
	refreshCredential(refreshToken string) *RefreshTokenCredential
}

// singleUser is implemented by credentials that cannot be executed twice,
// such as a redeemed authorization code.
type singleUser interface {
	singleUse() bool
}
