package session

import (
	"path/filepath"
	"time"

	"github.com/tonimelisma/msgraph-client/pkg/identity"
)

const authSessionFile = "auth_session.json"

// AuthState is a device-code sign-in waiting for the user to finish in the
// browser.
type AuthState struct {
	DeviceCode      string    `json:"device_code"`
	UserCode        string    `json:"user_code"`
	VerificationURI string    `json:"verification_uri"`
	Interval        int       `json:"interval"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// NewAuthState captures a device authorization issued at now.
func NewAuthState(auth *identity.DeviceAuthorization, now time.Time) *AuthState {
	s := &AuthState{
		DeviceCode:      auth.DeviceCode,
		UserCode:        auth.UserCode,
		VerificationURI: auth.VerificationURI,
		Interval:        auth.Interval,
	}
	if auth.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(auth.ExpiresIn) * time.Second)
	}
	return s
}

// Authorization rebuilds the device authorization for polling, with the
// remaining lifetime as of now.
func (s *AuthState) Authorization(now time.Time) *identity.DeviceAuthorization {
	auth := &identity.DeviceAuthorization{
		DeviceCode:      s.DeviceCode,
		UserCode:        s.UserCode,
		VerificationURI: s.VerificationURI,
		Interval:        s.Interval,
	}
	if !s.ExpiresAt.IsZero() {
		auth.ExpiresIn = max(int(s.ExpiresAt.Sub(now).Seconds()), 1)
	}
	return auth
}

// Expired reports whether the device code can no longer be redeemed.
func (s *AuthState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (m *Manager) getAuthSessionFilePath() string {
	return filepath.Join(m.getSessionDir(), authSessionFile)
}

// SaveAuthState persists a pending sign-in.
func (m *Manager) SaveAuthState(state *AuthState) error {
	path := m.getAuthSessionFilePath()
	return m.withLock(path, func() error { return writeJSON(path, state) })
}

// LoadAuthState returns the pending sign-in, or nil when there is none.
func (m *Manager) LoadAuthState() (*AuthState, error) {
	path := m.getAuthSessionFilePath()
	var state AuthState
	var found bool
	err := m.withLock(path, func() error {
		var err error
		found, err = readJSON(path, &state)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// DeleteAuthState removes the pending sign-in. It is not an error when
// there is none.
func (m *Manager) DeleteAuthState() error {
	path := m.getAuthSessionFilePath()
	return m.withLock(path, func() error { return removeFile(path) })
}
