// Package interactive drives a sign-in window until it reaches a redirect
// URI. The window itself is a platform shim; LoopbackWindow uses the system
// browser and a loopback listener.
package interactive

import (
	"fmt"
	"net/url"
	"strings"
)

// RedirectURI is a URI the sign-in flow ends on. Exact URIs match a
// navigation whose scheme, host and path are equal, ignoring query and
// fragment. Prefix URIs match any navigation that starts with URL.
type RedirectURI struct {
	URL    string
	Prefix bool
}

// Matches reports whether nav ends the flow.
func (r RedirectURI) Matches(nav string) bool {
	if r.Prefix {
		return strings.HasPrefix(nav, r.URL)
	}
	want, err := url.Parse(r.URL)
	if err != nil {
		return false
	}
	got, err := url.Parse(nav)
	if err != nil {
		return false
	}
	return strings.EqualFold(want.Scheme, got.Scheme) &&
		strings.EqualFold(want.Host, got.Host) &&
		normalizePath(want.Path) == normalizePath(got.Path)
}

// Resembles reports whether nav is on the redirect's scheme and host and
// carries an authorization response. Such a navigation that does not match
// is a misconfigured redirect. Sign-in pages on the same host, as with the
// nativeclient redirect on the login host, do not resemble it.
func (r RedirectURI) Resembles(nav string) bool {
	want, err := url.Parse(r.URL)
	if err != nil {
		return false
	}
	got, err := url.Parse(nav)
	if err != nil {
		return false
	}
	if !strings.EqualFold(want.Scheme, got.Scheme) || !strings.EqualFold(want.Host, got.Host) {
		return false
	}
	return hasAuthorizationResponse(got)
}

var responseParams = []string{"code", "error", "id_token", "state"}

func hasAuthorizationResponse(u *url.URL) bool {
	query := u.Query()
	frag, _ := url.ParseQuery(u.Fragment)
	for _, p := range responseParams {
		if query.Has(p) || frag.Has(p) {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// AuthorizationResponse is what the authorization server put on the
// redirect URI.
type AuthorizationResponse struct {
	Code             string
	State            string
	IDToken          string
	Error            string
	ErrorDescription string
}

// ParseRedirect reads an authorization response from the query and, for
// form_post and fragment response modes, the fragment.
func ParseRedirect(raw string) (*AuthorizationResponse, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect %q: %w", raw, err)
	}
	values := u.Query()
	if u.Fragment != "" {
		frag, err := url.ParseQuery(u.Fragment)
		if err != nil {
			return nil, fmt.Errorf("parsing redirect fragment: %w", err)
		}
		for k, v := range frag {
			if !values.Has(k) {
				values[k] = v
			}
		}
	}
	return &AuthorizationResponse{
		Code:             values.Get("code"),
		State:            values.Get("state"),
		IDToken:          values.Get("id_token"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
	}, nil
}
