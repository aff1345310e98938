// Package app wires the persisted configuration, the token cache and the
// sign-in flows into the Graph client the CLI commands use.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tonimelisma/msgraph-client/internal/config"
	"github.com/tonimelisma/msgraph-client/internal/logger"
	"github.com/tonimelisma/msgraph-client/internal/session"
	"github.com/tonimelisma/msgraph-client/pkg/graph"
	"github.com/tonimelisma/msgraph-client/pkg/identity"
	"github.com/tonimelisma/msgraph-client/pkg/interactive"
)

// ClientSecretEnv holds the secret for app-only access. When it is set,
// Graph calls run as the application instead of the signed-in user.
const ClientSecretEnv = "MSGRAPH_CLIENT_SECRET"

// interactiveTimeout bounds a browser sign-in.
const interactiveTimeout = 5 * time.Minute

var (
	// ErrLoginPending means the user has not finished a device-code sign-in.
	ErrLoginPending = errors.New("login pending")
	// ErrNoPendingLogin means there is no device-code sign-in to complete.
	ErrNoPendingLogin = errors.New("no pending login")
)

// App is the state shared by the CLI commands.
type App struct {
	Config   *config.Configuration
	Sessions *session.Manager
	Cache    *identity.TokenCache
	Logger   logger.Logger

	// GraphBaseURL and LoginHost redirect Graph and token traffic; tests
	// point them at local servers.
	GraphBaseURL string
	LoginHost    string
	// OpenBrowser replaces the system browser for interactive sign-in.
	OpenBrowser func(url string) error

	executor *identity.Executor
	now      func() time.Time
}

// New assembles an App around already loaded state. The token cache is
// in-memory until Persist is called.
func New(cfg *config.Configuration, sessions *session.Manager, l logger.Logger) *App {
	if l == nil {
		l = logger.NoopLogger{}
	}
	return &App{
		Config:   cfg,
		Sessions: sessions,
		Cache:    identity.NewTokenCache(),
		Logger:   l,
		executor: identity.NewExecutor(identity.WithExecutorLogger(l), identity.WithDebugDumps(cfg.Debug)),
		now:      time.Now,
	}
}

// NewApp loads the configuration and the persisted token cache for cmd.
func NewApp(cmd *cobra.Command) (*App, error) {
	cfg, err := config.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	a := New(cfg, session.NewManagerWithConfigDir(dir), logger.NewDefaultLogger(cfg.Debug))
	if err := a.Persist(); err != nil {
		return nil, err
	}
	return a, nil
}

// Persist restores the token cache from disk and saves it on every change.
func (a *App) Persist() error {
	return a.Sessions.PersistentCache(a.Cache, func(err error) {
		a.Logger.Warnf("Could not save token cache: %v", err)
	})
}

// Authority is the configured authority, with the login host override.
func (a *App) Authority() (identity.Authority, error) {
	authority, err := a.Config.Authority()
	if err != nil {
		return identity.Authority{}, err
	}
	if a.LoginHost != "" {
		authority.Host = a.LoginHost
	}
	return authority, nil
}

// userCredential is the delegated session. Its cache id does not depend on
// the refresh token, so every sign-in flow stores under the same key.
func (a *App) userCredential(refreshToken string) (*identity.RefreshTokenCredential, error) {
	authority, err := a.Authority()
	if err != nil {
		return nil, err
	}
	return &identity.RefreshTokenCredential{
		ClientID:     a.Config.ClientID,
		RefreshToken: refreshToken,
		Authority:    authority,
		Scopes:       a.Config.Scopes,
	}, nil
}

// SaveUserToken stores a delegated token as the signed-in session.
func (a *App) SaveUserToken(tok *identity.Token) error {
	cred, err := a.userCredential("")
	if err != nil {
		return err
	}
	a.Cache.Store(cred.CacheID(), tok)
	return nil
}

// UserToken returns the cached delegated token without renewing it.
func (a *App) UserToken() (*identity.Token, error) {
	cred, err := a.userCredential("")
	if err != nil {
		return nil, err
	}
	tok, ok := a.Cache.Get(cred.CacheID())
	if !ok {
		return nil, graph.ErrReauthRequired
	}
	return tok, nil
}

func (a *App) deviceCodeFlow() (*identity.DeviceCodeFlow, error) {
	authority, err := a.Authority()
	if err != nil {
		return nil, err
	}
	return &identity.DeviceCodeFlow{
		ClientID:  a.Config.ClientID,
		Authority: authority,
		Scopes:    a.Config.Scopes,
		Executor:  a.executor,
		Now:       a.now,
		OnEvent: func(ev identity.DeviceCodeEvent) {
			a.Logger.Debug("device code poll", "err", ev.Err, "interval", ev.Interval)
		},
	}, nil
}

// StartDeviceLogin requests a device code and saves it so a later command
// can complete the sign-in.
func (a *App) StartDeviceLogin(ctx context.Context) (*identity.DeviceAuthorization, error) {
	flow, err := a.deviceCodeFlow()
	if err != nil {
		return nil, err
	}
	auth, err := flow.Start(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.Sessions.SaveAuthState(session.NewAuthState(auth, a.now())); err != nil {
		return nil, fmt.Errorf("saving pending login: %w", err)
	}
	return auth, nil
}

// PendingLogin returns the saved device-code sign-in, if any.
func (a *App) PendingLogin() (*session.AuthState, error) {
	return a.Sessions.LoadAuthState()
}

// CompleteDeviceLogin redeems the saved device code. Without wait it asks
// once and returns ErrLoginPending while the user is still signing in;
// with wait it polls until the code expires. A failure other than pending
// discards the saved state.
func (a *App) CompleteDeviceLogin(ctx context.Context, wait bool) (*identity.Token, error) {
	state, err := a.Sessions.LoadAuthState()
	if err != nil {
		return nil, fmt.Errorf("loading pending login: %w", err)
	}
	if state == nil {
		return nil, ErrNoPendingLogin
	}
	flow, err := a.deviceCodeFlow()
	if err != nil {
		return nil, err
	}

	var tok *identity.Token
	if wait {
		tok, err = flow.Poll(ctx, state.Authorization(a.now()))
	} else if state.Expired(a.now()) {
		err = identity.ErrDeviceCodeExpired
	} else {
		tok, err = flow.PollOnce(ctx, state.DeviceCode)
	}
	if err != nil {
		if errors.Is(err, identity.ErrAuthorizationPending) || errors.Is(err, identity.ErrSlowDown) {
			return nil, fmt.Errorf("%w: go to %s and enter code %s", ErrLoginPending, state.VerificationURI, state.UserCode)
		}
		if delErr := a.Sessions.DeleteAuthState(); delErr != nil {
			a.Logger.Warnf("Could not delete pending login: %v", delErr)
		}
		return nil, fmt.Errorf("device code sign-in failed: %w", err)
	}

	if err := a.SaveUserToken(tok); err != nil {
		return nil, err
	}
	if err := a.Sessions.DeleteAuthState(); err != nil {
		a.Logger.Warnf("Could not delete pending login: %v", err)
	}
	return tok, nil
}

// LoginInteractive signs the user in through the browser and a loopback
// redirect, using PKCE.
func (a *App) LoginInteractive(ctx context.Context) (*identity.Token, error) {
	authority, err := a.Authority()
	if err != nil {
		return nil, err
	}
	window, err := interactive.NewLoopbackWindow(a.Config.RedirectURI)
	if err != nil {
		return nil, err
	}
	if a.OpenBrowser != nil {
		window.OpenBrowser = a.OpenBrowser
	}
	driver := interactive.NewDriver(window,
		interactive.Options{WindowTitle: "Sign in to Microsoft Graph", Timeout: interactiveTimeout},
		interactive.WithLogger(a.Logger))

	flow := &identity.AuthorizationCodeFlow{
		ClientID:    a.Config.ClientID,
		Authority:   authority,
		Scopes:      a.Config.Scopes,
		RedirectURI: window.RedirectURI(),
		Prompt:      "select_account",
	}
	cred, err := flow.AcquireInteractive(ctx, driver)
	if err != nil {
		return nil, err
	}
	tok, err := a.executor.Execute(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("redeeming authorization code: %w", err)
	}
	if err := a.SaveUserToken(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// ClientSecretApplication is app-only access with a client secret against
// the configured tenant.
func (a *App) ClientSecretApplication(secret string) (*identity.ClientApplication, error) {
	authority, err := a.Authority()
	if err != nil {
		return nil, err
	}
	cred, err := identity.NewClientSecretCredential(a.Config.ClientID, secret, authority, []string{identity.GraphDefaultScope})
	if err != nil {
		return nil, err
	}
	return a.application(cred)
}

// LoginClientSecret acquires and caches an app-only token.
func (a *App) LoginClientSecret(ctx context.Context, secret string) (*identity.Token, error) {
	ca, err := a.ClientSecretApplication(secret)
	if err != nil {
		return nil, err
	}
	return ca.GetTokenSilent(ctx)
}

// UserApplication is the delegated session restored from the cache. It
// refreshes with the cached refresh token and picks up rotated ones.
func (a *App) UserApplication() (*identity.ClientApplication, error) {
	tok, err := a.UserToken()
	if err != nil {
		return nil, err
	}
	cred, err := a.userCredential(tok.RefreshToken)
	if err != nil {
		return nil, err
	}
	return a.application(cred)
}

func (a *App) application(cred identity.Credential) (*identity.ClientApplication, error) {
	return identity.NewClientApplication(cred,
		identity.WithTokenCache(a.Cache),
		identity.WithExecutor(a.executor),
		identity.WithLogger(a.Logger),
		identity.WithClock(a.now))
}

// Authenticator picks app-only access when ClientSecretEnv is set and the
// delegated session otherwise.
func (a *App) Authenticator() (graph.Authenticator, error) {
	if secret := os.Getenv(ClientSecretEnv); secret != "" {
		return a.ClientSecretApplication(secret)
	}
	return a.UserApplication()
}

// GraphClient builds the Graph client for the configured API version.
func (a *App) GraphClient() (*graph.Client, error) {
	auth, err := a.Authenticator()
	if err != nil {
		return nil, err
	}
	version, err := a.Config.Version()
	if err != nil {
		return nil, err
	}
	opts := []graph.Option{
		graph.WithAPIVersion(version),
		graph.WithLogger(a.Logger),
		graph.WithRequestDump(a.Config.Debug),
	}
	if rps := a.Config.RequestsPerSecond; rps > 0 {
		opts = append(opts, graph.WithRateLimit(rps, max(1, int(rps))))
	}
	if a.GraphBaseURL != "" {
		opts = append(opts, graph.WithBaseURL(a.GraphBaseURL), graph.WithHTTPSOnly(false))
	}
	return graph.NewClient(auth, opts...)
}

// Logout forgets the delegated session and any pending sign-in. App-only
// tokens in the cache go too.
func (a *App) Logout() error {
	for id := range a.Cache.Snapshot() {
		a.Cache.Remove(id)
	}
	if err := a.Sessions.DeleteTokens(); err != nil {
		return fmt.Errorf("could not clear tokens: %w", err)
	}
	if err := a.Sessions.DeleteAuthState(); err != nil {
		a.Logger.Warnf("Could not delete pending login during logout: %v", err)
	}
	return nil
}
