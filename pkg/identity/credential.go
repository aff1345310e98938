package identity

import (
	"context"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GraphDefaultScope requests every application permission granted to the
// app for Microsoft Graph.
const GraphDefaultScope = "https://graph.microsoft.com/.default"

const (
	grantClientCredentials = "client_credentials"
	grantAuthorizationCode = "authorization_code"
	grantPassword          = "password"
	grantDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
	grantRefreshToken      = "refresh_token"

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// cacheID hashes the identifying inputs of a credential. Scopes are sorted
// so their order does not matter.
func cacheID(clientID string, authority Authority, scopes []string, salt ...string) string {
	sorted := slices.Clone(scopes)
	slices.Sort(sorted)
	parts := []string{clientID, authority.Cloud.String(), strings.ToLower(authority.TenantOrDefault()), strings.Join(sorted, " ")}
	parts = append(parts, salt...)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

func scopeParam(scopes []string) string { return strings.Join(scopes, " ") }

// ClientSecretCredential is the client-credentials grant with a shared
// secret sent via HTTP basic auth.
type ClientSecretCredential struct {
	ClientID     string
	ClientSecret string
	Authority    Authority
	Scopes       []string
}

// NewClientSecretCredential validates and returns the credential.
func NewClientSecretCredential(clientID, secret string, authority Authority, scopes []string) (*ClientSecretCredential, error) {
	c := &ClientSecretCredential{ClientID: clientID, ClientSecret: secret, Authority: authority, Scopes: scopes}
	return c, c.validate()
}

func (c *ClientSecretCredential) validate() error {
	switch {
	case c.ClientID == "":
		return missing("client_id")
	case c.ClientSecret == "":
		return missing("client_secret")
	case len(c.Scopes) == 0:
		return missing("scope")
	}
	return nil
}

// CacheID implements Credential.
func (c *ClientSecretCredential) CacheID() string {
	return cacheID(c.ClientID, c.Authority, c.Scopes, grantClientCredentials, "secret")
}

// TokenRequest implements Credential.
func (c *ClientSecretCredential) TokenRequest(context.Context) (*TokenRequest, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &TokenRequest{
		Endpoint: c.Authority.TokenEndpoint(),
		Form: url.Values{
			"grant_type": {grantClientCredentials},
			"scope":      {scopeParam(c.Scopes)},
		},
		BasicAuth: &BasicAuth{Username: c.ClientID, Password: c.ClientSecret},
	}, nil
}

// AssertionFunc produces a signed client assertion on demand.
type AssertionFunc func(ctx context.Context) (string, error)

// ClientAssertionCredential is the client-credentials grant with a signed
// JWT. Set Assertion for a fixed token or AssertionFunc to mint one per
// request.
type ClientAssertionCredential struct {
	ClientID      string
	Assertion     string
	AssertionFunc AssertionFunc
	Authority     Authority
	Scopes        []string
}

// NewClientAssertionCredential validates and returns the credential.
func NewClientAssertionCredential(clientID, assertion string, authority Authority, scopes []string) (*ClientAssertionCredential, error) {
	c := &ClientAssertionCredential{ClientID: clientID, Assertion: assertion, Authority: authority, Scopes: scopes}
	return c, c.validate()
}

func (c *ClientAssertionCredential) validate() error {
	switch {
	case c.ClientID == "":
		return missing("client_id")
	case c.Assertion == "" && c.AssertionFunc == nil:
		return missing("client_assertion")
	case len(c.Scopes) == 0:
		return missing("scope")
	}
	return nil
}

func (c *ClientAssertionCredential) assertion(ctx context.Context) (string, error) {
	if c.AssertionFunc == nil {
		return c.Assertion, nil
	}
	a, err := c.AssertionFunc(ctx)
	if err != nil {
		return "", fmt.Errorf("building client assertion: %w", err)
	}
	if a == "" {
		return "", missing("client_assertion")
	}
	return a, nil
}

// CacheID implements Credential.
func (c *ClientAssertionCredential) CacheID() string {
	return cacheID(c.ClientID, c.Authority, c.Scopes, grantClientCredentials, "assertion")
}

// TokenRequest implements Credential.
func (c *ClientAssertionCredential) TokenRequest(ctx context.Context) (*TokenRequest, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	assertion, err := c.assertion(ctx)
	if err != nil {
		return nil, err
	}
	return &TokenRequest{
		Endpoint: c.Authority.TokenEndpoint(),
		Form: url.Values{
			"grant_type":            {grantClientCredentials},
			"client_id":             {c.ClientID},
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
			"scope":                 {scopeParam(c.Scopes)},
		},
	}, nil
}

// AssertionLifetime is how long a minted client assertion is valid.
const AssertionLifetime = 10 * time.Minute

// CertificateSigner mints RS256 client assertions from a certificate and
// its private key.
type CertificateSigner struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
	// SendX5C embeds the certificate chain, needed for subject name and
	// issuer authentication.
	SendX5C bool
	now     func() time.Time
}

// Thumbprint is the base64url SHA-1 of the DER certificate, used as x5t.
func (s *CertificateSigner) Thumbprint() string {
	sum := sha1.Sum(s.Certificate.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Sign returns an assertion for clientID addressed to audience.
func (s *CertificateSigner) Sign(clientID, audience string) (string, error) {
	if s.Certificate == nil {
		return "", missing("certificate")
	}
	if s.PrivateKey == nil {
		return "", missing("private_key")
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	issued := now()
	claims := jwt.RegisteredClaims{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(issued),
		NotBefore: jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(AssertionLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["x5t"] = s.Thumbprint()
	if s.SendX5C {
		token.Header["x5c"] = []string{base64.StdEncoding.EncodeToString(s.Certificate.Raw)}
	}
	signed, err := token.SignedString(s.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("signing client assertion: %w", err)
	}
	return signed, nil
}

// ParseCertificatePEM reads a certificate and an RSA private key (PKCS#1
// or PKCS#8) from PEM data, in any order.
func ParseCertificatePEM(data []byte) (*x509.Certificate, *rsa.PrivateKey, error) {
	var cert *x509.Certificate
	var key *rsa.PrivateKey
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			if cert != nil {
				continue
			}
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing certificate: %w", err)
			}
			cert = c
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing PKCS#1 key: %w", err)
			}
			key = k
		case "PRIVATE KEY":
			parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing PKCS#8 key: %w", err)
			}
			k, ok := parsed.(*rsa.PrivateKey)
			if !ok {
				return nil, nil, errors.New("private key is not RSA")
			}
			key = k
		}
	}
	if cert == nil {
		return nil, nil, missing("certificate")
	}
	if key == nil {
		return nil, nil, missing("private_key")
	}
	return cert, key, nil
}

// ClientCertificateCredential is the client-credentials grant with an
// assertion signed by a certificate.
type ClientCertificateCredential struct {
	ClientID  string
	Signer    *CertificateSigner
	Authority Authority
	Scopes    []string
}

// NewClientCertificateCredential validates and returns the credential.
func NewClientCertificateCredential(clientID string, cert *x509.Certificate, key *rsa.PrivateKey, authority Authority, scopes []string) (*ClientCertificateCredential, error) {
	c := &ClientCertificateCredential{
		ClientID:  clientID,
		Signer:    &CertificateSigner{Certificate: cert, PrivateKey: key},
		Authority: authority,
		Scopes:    scopes,
	}
	return c, c.validate()
}

func (c *ClientCertificateCredential) validate() error {
	switch {
	case c.ClientID == "":
		return missing("client_id")
	case c.Signer == nil || c.Signer.Certificate == nil:
		return missing("certificate")
	case c.Signer.PrivateKey == nil:
		return missing("private_key")
	case len(c.Scopes) == 0:
		return missing("scope")
	}
	return nil
}

// CacheID implements Credential.
func (c *ClientCertificateCredential) CacheID() string {
	thumb := ""
	if c.Signer != nil && c.Signer.Certificate != nil {
		thumb = c.Signer.Thumbprint()
	}
	return cacheID(c.ClientID, c.Authority, c.Scopes, grantClientCredentials, "certificate", thumb)
}

// TokenRequest implements Credential.
func (c *ClientCertificateCredential) TokenRequest(ctx context.Context) (*TokenRequest, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	endpoint := c.Authority.TokenEndpoint()
	assertion := &ClientAssertionCredential{
		ClientID:  c.ClientID,
		Authority: c.Authority,
		Scopes:    c.Scopes,
		AssertionFunc: func(context.Context) (string, error) {
			return c.Signer.Sign(c.ClientID, endpoint)
		},
	}
	return assertion.TokenRequest(ctx)
}
