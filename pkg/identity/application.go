package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonimelisma/msgraph-client/internal/logger"
	"golang.org/x/oauth2"
)

// ClientApplication hands out access tokens for one credential, cache
// first. It implements graph.Authenticator.
//
// Two callers that see the same stale token may both refresh it; the last
// stored token wins and both get a valid one.
type ClientApplication struct {
	credential Credential
	cache      *TokenCache
	executor   *Executor
	skew       time.Duration
	now        func() time.Time
	logger     Logger
}

// Option configures a ClientApplication.
type Option func(*ClientApplication)

// WithTokenCache shares a cache, e.g. one restored from disk.
func WithTokenCache(c *TokenCache) Option {
	return func(a *ClientApplication) {
		if c != nil {
			a.cache = c
		}
	}
}

// WithExecutor sets the token executor.
func WithExecutor(e *Executor) Option {
	return func(a *ClientApplication) {
		if e != nil {
			a.executor = e
		}
	}
}

// WithSkew changes how early a token counts as stale.
func WithSkew(d time.Duration) Option {
	return func(a *ClientApplication) {
		if d >= 0 {
			a.skew = d
		}
	}
}

// WithClock injects the clock.
func WithClock(now func() time.Time) Option {
	return func(a *ClientApplication) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(a *ClientApplication) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewClientApplication creates an application for cred.
func NewClientApplication(cred Credential, opts ...Option) (*ClientApplication, error) {
	if cred == nil {
		return nil, missing("credential")
	}
	a := &ClientApplication{
		credential: cred,
		cache:      NewTokenCache(),
		skew:       DefaultSkew,
		now:        time.Now,
		logger:     logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.executor == nil {
		a.executor = NewExecutor(WithExecutorLogger(a.logger))
	}
	return a, nil
}

// Cache returns the token cache.
func (a *ClientApplication) Cache() *TokenCache { return a.cache }

// Credential returns the credential.
func (a *ClientApplication) Credential() Credential { return a.credential }

// CacheID is the key this application's token is stored under.
func (a *ClientApplication) CacheID() string { return a.credential.CacheID() }

// TokenOptions tunes a silent lookup.
type TokenOptions struct {
	// ForceRefresh skips the cache.
	ForceRefresh bool
}

// GetTokenSilent returns the cached token while it is fresh, otherwise
// renews it and stores the result.
func (a *ClientApplication) GetTokenSilent(ctx context.Context) (*Token, error) {
	return a.GetTokenSilentWithOptions(ctx, TokenOptions{})
}

// GetTokenSilentWithOptions is GetTokenSilent with options.
func (a *ClientApplication) GetTokenSilentWithOptions(ctx context.Context, opts TokenOptions) (*Token, error) {
	id := a.credential.CacheID()
	cached, ok := a.cache.Get(id)
	if ok && !opts.ForceRefresh && !cached.IsStale(a.now(), a.skew) {
		return cached, nil
	}

	if ok && cached.RefreshToken != "" {
		if r, canRefresh := a.credential.(refresher); canRefresh {
			tok, err := a.executor.Execute(ctx, r.refreshCredential(cached.RefreshToken))
			if err == nil {
				if tok.RefreshToken == "" {
					tok.RefreshToken = cached.RefreshToken
				}
				if tok.IDToken == "" {
					tok.IDToken = cached.IDToken
				}
				a.cache.Store(id, tok)
				a.logger.Debug("access token refreshed", "expires", tok.ExpiresAt)
				return tok, nil
			}
			if su, ok := a.credential.(singleUser); ok && su.singleUse() {
				return nil, fmt.Errorf("refreshing token: %w", err)
			}
			a.logger.Warnf("Refreshing token failed, requesting a new one: %v", err)
		}
	}

	if su, ok := a.credential.(singleUser); ok && su.singleUse() && cached != nil {
		return nil, fmt.Errorf("%w: token expired and cannot be refreshed", ErrNoCachedToken)
	}

	tok, err := a.executor.Execute(ctx, a.credential)
	if err != nil {
		return nil, err
	}
	a.cache.Store(id, tok)
	a.logger.Debug("access token acquired", "expires", tok.ExpiresAt)
	return tok, nil
}

// Seed stores a token obtained out of band, such as from the device-code
// flow or a persisted session, under this application's cache id.
func (a *ClientApplication) Seed(tok *Token) {
	a.cache.Store(a.credential.CacheID(), tok)
}

// AccessToken returns a bearer token. It satisfies graph.Authenticator.
func (a *ClientApplication) AccessToken(ctx context.Context) (string, error) {
	tok, err := a.GetTokenSilent(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// CachedToken returns the cached token without renewing it.
func (a *ClientApplication) CachedToken() (*Token, error) {
	tok, ok := a.cache.Get(a.credential.CacheID())
	if !ok {
		return nil, ErrNoCachedToken
	}
	return tok, nil
}

// Account describes the signed-in user from the cached id token.
func (a *ClientApplication) Account() (*Account, error) {
	tok, err := a.CachedToken()
	if err != nil {
		return nil, err
	}
	if tok.IDToken == "" {
		return nil, errors.New("cached token has no id token")
	}
	return ParseIDToken(tok.IDToken)
}

// TokenSource adapts the application to oauth2.TokenSource.
func (a *ClientApplication) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &applicationTokenSource{ctx: ctx, app: a}
}

type applicationTokenSource struct {
	ctx context.Context
	app *ClientApplication
}

func (s *applicationTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.app.GetTokenSilent(s.ctx)
	if err != nil {
		return nil, err
	}
	return tok.OAuth2(), nil
}
