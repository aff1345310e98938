package identity

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidAuthority is returned when a flow cannot run against the
	// configured authority, e.g. ROPC on "common".
	ErrInvalidAuthority = errors.New("invalid authority for this flow")
	// ErrTokenRequest wraps every failed token endpoint call.
	ErrTokenRequest = errors.New("token request failed")
	// ErrTokenResponse is returned when the token endpoint reply cannot be
	// parsed or has no access token.
	ErrTokenResponse = errors.New("malformed token response")
	// ErrStateMismatch is returned when a redirect carries another state.
	ErrStateMismatch = errors.New("authorization response state does not match request")
	// ErrNoCachedToken is returned by silent lookups that must not hit the
	// network and found nothing.
	ErrNoCachedToken = errors.New("no cached token")

	// Device-code outcomes.
	ErrAuthorizationPending = errors.New("authorization pending")
	ErrSlowDown             = errors.New("polling too fast, slow down")
	ErrUserDeclined         = errors.New("user declined authorization")
	ErrBadDeviceCode        = errors.New("bad device code")
	ErrDeviceCodeExpired    = errors.New("device code expired")
)

// MissingParameterError reports an empty required credential field. It is
// raised before any request is sent.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Name)
}

func missing(name string) error { return &MissingParameterError{Name: name} }

// OAuthError is the standard error body of the token endpoint.
type OAuthError struct {
	Code          string `json:"error"`
	Description   string `json:"error_description,omitempty"`
	ErrorCodes    []int  `json:"error_codes,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ErrorURI      string `json:"error_uri,omitempty"`
}

func parseOAuthError(body []byte) *OAuthError {
	var e OAuthError
	if err := json.Unmarshal(body, &e); err != nil || e.Code == "" {
		return nil
	}
	return &e
}

// SilentTokenAuthError is returned for a non-2xx token endpoint reply.
// Failed replies are never cached.
type SilentTokenAuthError struct {
	StatusCode      int
	Body            []byte
	WWWAuthenticate string
	OAuth           *OAuthError
}

func (e *SilentTokenAuthError) Error() string {
	if e.OAuth != nil {
		if e.OAuth.Description != "" {
			return fmt.Sprintf("%v: %d %s: %s", ErrTokenRequest, e.StatusCode, e.OAuth.Code, e.OAuth.Description)
		}
		return fmt.Sprintf("%v: %d %s", ErrTokenRequest, e.StatusCode, e.OAuth.Code)
	}
	return fmt.Sprintf("%v: status %d", ErrTokenRequest, e.StatusCode)
}

// Is matches ErrTokenRequest.
func (e *SilentTokenAuthError) Is(target error) bool { return target == ErrTokenRequest }

// Code returns the OAuth error code, or "".
func (e *SilentTokenAuthError) Code() string {
	if e.OAuth == nil {
		return ""
	}
	return e.OAuth.Code
}

// InteractiveWindowClosedError is returned when the sign-in window closed
// before reaching the redirect URI.
type InteractiveWindowClosedError struct {
	Reason string
}

func (e *InteractiveWindowClosedError) Error() string {
	return "interactive sign-in window closed: " + e.Reason
}

// AuthorizationError is an error returned on the redirect URI.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return "authorization failed: " + e.Code
	}
	return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
}
