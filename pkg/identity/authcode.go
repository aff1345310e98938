package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	cv "github.com/nirasan/go-oauth-pkce-code-verifier"
	"github.com/tonimelisma/msgraph-client/pkg/interactive"
	"golang.org/x/oauth2"
)

// AuthorizationCodeFlow builds the authorize URL and turns the redirect into
// an AuthorizationCodeCredential. PKCE is on unless DisablePKCE is set.
type AuthorizationCodeFlow struct {
	ClientID     string
	ClientSecret string
	Assertion    AssertionFunc
	Authority    Authority
	Scopes       []string
	RedirectURI  string

	Prompt     string
	LoginHint  string
	DomainHint string

	DisablePKCE bool
}

// AuthorizationRequest is one authorize URL plus the values needed to
// validate and redeem its response.
type AuthorizationRequest struct {
	URL          string
	State        string
	Nonce        string
	CodeVerifier string
}

func (f *AuthorizationCodeFlow) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		RedirectURL:  f.RedirectURI,
		Scopes:       f.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.Authority.AuthorizeEndpoint(),
			TokenURL: f.Authority.TokenEndpoint(),
		},
	}
}

// AuthorizationURL creates a fresh authorize URL with new state, nonce and
// PKCE verifier.
func (f *AuthorizationCodeFlow) AuthorizationURL() (*AuthorizationRequest, error) {
	switch {
	case f.ClientID == "":
		return nil, missing("client_id")
	case f.RedirectURI == "":
		return nil, missing("redirect_uri")
	}
	req := &AuthorizationRequest{State: uuid.NewString(), Nonce: uuid.NewString()}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("nonce", req.Nonce),
	}
	if !f.DisablePKCE {
		verifier, err := cv.CreateCodeVerifier()
		if err != nil {
			return nil, fmt.Errorf("creating PKCE code verifier: %w", err)
		}
		req.CodeVerifier = verifier.String()
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", verifier.CodeChallengeS256()),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	if f.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", f.Prompt))
	}
	if f.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", f.LoginHint))
	}
	if f.DomainHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("domain_hint", f.DomainHint))
	}
	req.URL = f.oauth2Config().AuthCodeURL(req.State, opts...)
	return req, nil
}

// Credential builds the credential for a code received out of band.
func (f *AuthorizationCodeFlow) Credential(req *AuthorizationRequest, code string) *AuthorizationCodeCredential {
	return &AuthorizationCodeCredential{
		ClientID:     f.ClientID,
		Code:         code,
		RedirectURI:  f.RedirectURI,
		CodeVerifier: req.CodeVerifier,
		ClientSecret: f.ClientSecret,
		Assertion:    f.Assertion,
		Authority:    f.Authority,
		Scopes:       f.Scopes,
	}
}

// CredentialFromRedirect validates the redirect URL against req.
func (f *AuthorizationCodeFlow) CredentialFromRedirect(req *AuthorizationRequest, redirectURL string) (*AuthorizationCodeCredential, error) {
	resp, err := interactive.ParseRedirect(redirectURL)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &AuthorizationError{Code: resp.Error, Description: resp.ErrorDescription}
	}
	if resp.State != req.State {
		return nil, ErrStateMismatch
	}
	if resp.Code == "" {
		return nil, missing("code")
	}
	return f.Credential(req, resp.Code), nil
}

// AcquireInteractive signs the user in through driver and returns a
// credential ready to redeem.
func (f *AuthorizationCodeFlow) AcquireInteractive(ctx context.Context, driver *interactive.Driver) (*AuthorizationCodeCredential, error) {
	req, err := f.AuthorizationURL()
	if err != nil {
		return nil, err
	}
	ev, err := driver.Await(ctx, req.URL, []interactive.RedirectURI{{URL: f.RedirectURI}})
	if err != nil {
		return nil, err
	}
	switch e := ev.(type) {
	case interactive.ReachedRedirectURI:
		return f.CredentialFromRedirect(req, e.URL)
	case interactive.WindowClosed:
		return nil, &InteractiveWindowClosedError{Reason: e.Reason.String()}
	case interactive.InvalidRedirectURI:
		return nil, fmt.Errorf("sign-in window reached %q, which does not match redirect uri %q", e.URL, f.RedirectURI)
	}
	return nil, fmt.Errorf("unexpected sign-in event %T", ev)
}
