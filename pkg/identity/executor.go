package identity

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/msgraph-client/internal/logger"
)

// BasicAuth is client authentication sent in the Authorization header.
type BasicAuth struct {
	Username string
	Password string
}

// TokenRequest is a form POST to a token endpoint.
type TokenRequest struct {
	Endpoint  string
	Form      url.Values
	BasicAuth *BasicAuth
}

// Credential is one way of obtaining a token. TokenRequest validates the
// credential and must not touch the network.
type Credential interface {
	CacheID() string
	TokenRequest(ctx context.Context) (*TokenRequest, error)
}

// Executor sends token requests.
type Executor struct {
	httpClient *http.Client
	logger     Logger
	debug      bool
	now        func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDebugDumps logs token requests and responses at debug level. Secrets
// in the form are redacted.
func WithDebugDumps(enabled bool) ExecutorOption {
	return func(e *Executor) { e.debug = enabled }
}

// WithExecutorClock injects the clock used to compute expiry.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor creates an Executor with a 30 second, TLS 1.2+ HTTP client.
func NewExecutor(opts ...ExecutorOption) *Executor {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	e := &Executor{
		httpClient: &http.Client{Timeout: 30 * time.Second, Transport: transport},
		logger:     logger.NoopLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates cred, posts its request and parses the token.
func (e *Executor) Execute(ctx context.Context, cred Credential) (*Token, error) {
	req, err := cred.TokenRequest(ctx)
	if err != nil {
		return nil, err
	}
	body, err := e.post(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseTokenResponse(body, e.now())
}

// post sends req and returns the body of a 2xx reply. Any other status is
// a *SilentTokenAuthError.
func (e *Executor) post(ctx context.Context, req *TokenRequest) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, strings.NewReader(req.Form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %w", ErrTokenRequest, req.Endpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if req.BasicAuth != nil {
		// RFC 6749 2.3.1: credentials are form-encoded before base64.
		httpReq.SetBasicAuth(url.QueryEscape(req.BasicAuth.Username), url.QueryEscape(req.BasicAuth.Password))
	}
	e.dumpRequest(httpReq, req.Form)

	res, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: network error calling %s: %w", ErrTokenRequest, req.Endpoint, err)
	}
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			e.logger.Warnf("Failed to close token response body: %v", closeErr)
		}
	}()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %w", ErrTokenRequest, req.Endpoint, err)
	}
	if e.debug {
		e.logger.Debugf("Token endpoint %s replied %s", req.Endpoint, res.Status)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &SilentTokenAuthError{
			StatusCode:      res.StatusCode,
			Body:            body,
			WWWAuthenticate: res.Header.Get("WWW-Authenticate"),
			OAuth:           parseOAuthError(body),
		}
	}
	return body, nil
}

var secretFields = []string{"client_secret", "client_assertion", "password", "refresh_token", "code", "code_verifier", "device_code"}

func (e *Executor) dumpRequest(req *http.Request, form url.Values) {
	if !e.debug {
		return
	}
	redacted := url.Values{}
	for k, v := range form {
		redacted[k] = v
	}
	for _, k := range secretFields {
		if redacted.Has(k) {
			redacted.Set(k, "[redacted]")
		}
	}
	clone := req.Clone(req.Context())
	clone.Header.Del("Authorization")
	clone.Body = io.NopCloser(bytes.NewReader([]byte(redacted.Encode())))
	clone.ContentLength = int64(len(redacted.Encode()))
	dump, err := httputil.DumpRequestOut(clone, true)
	if err != nil {
		e.logger.Debugf("Error dumping token request: %v", err)
		return
	}
	e.logger.Debugf("Token request:\n%s", dump)
}
