package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingReply(code string) tokenReply {
	return tokenReply{http.StatusBadRequest, `{"error":"` + code + `","error_description":"AADSTS70016: pending"}`}
}

func newTestDeviceFlow(ts *tokenServer, sleeps *[]time.Duration) *DeviceCodeFlow {
	return &DeviceCodeFlow{
		ClientID:  "app",
		Authority: ts.authority(),
		Scopes:    []string{"User.Read", "offline_access"},
		Sleep: func(_ context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		},
	}
}

func TestDeviceCodePollBacksOff(t *testing.T) {
	ts := newTokenServer(t,
		pendingReply("authorization_pending"),
		pendingReply("authorization_pending"),
		pendingReply("slow_down"),
		tokenReply{http.StatusOK, `{"access_token":"at","refresh_token":"rt","expires_in":3600}`},
	)
	var sleeps []time.Duration
	var events []DeviceCodeEvent
	flow := newTestDeviceFlow(ts, &sleeps)
	flow.OnEvent = func(ev DeviceCodeEvent) { events = append(events, ev) }

	tok, err := flow.Poll(context.Background(), &DeviceAuthorization{DeviceCode: "dc", Interval: 5, ExpiresIn: 900})
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 10 * time.Second}, sleeps)
	assert.Equal(t, 4, ts.count())
	require.Len(t, events, 4)
	assert.ErrorIs(t, events[0].Err, ErrAuthorizationPending)
	assert.ErrorIs(t, events[2].Err, ErrSlowDown)
	assert.NoError(t, events[3].Err)

	form := ts.last().form
	assert.Equal(t, grantDeviceCode, form.Get("grant_type"))
	assert.Equal(t, "dc", form.Get("device_code"))
}

func TestDeviceCodePollTerminalErrors(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"authorization_declined", ErrUserDeclined},
		{"expired_token", ErrDeviceCodeExpired},
		{"bad_verification_code", ErrBadDeviceCode},
		{"access_denied", ErrUserDeclined},
		{"invalid_grant", ErrBadDeviceCode},
		{"code_expired", ErrDeviceCodeExpired},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			ts := newTokenServer(t, pendingReply("authorization_pending"), pendingReply(tt.code))
			var sleeps []time.Duration
			flow := newTestDeviceFlow(ts, &sleeps)

			_, err := flow.Poll(context.Background(), &DeviceAuthorization{DeviceCode: "dc"})
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrTokenRequest)
			assert.Equal(t, []time.Duration{DefaultPollInterval}, sleeps)
		})
	}
}

func TestDeviceCodeUnknownErrorPassesThrough(t *testing.T) {
	ts := newTokenServer(t, pendingReply("invalid_client"))
	var sleeps []time.Duration
	flow := newTestDeviceFlow(ts, &sleeps)

	_, err := flow.Poll(context.Background(), &DeviceAuthorization{DeviceCode: "dc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenRequest)
	for _, sentinel := range []error{ErrUserDeclined, ErrBadDeviceCode, ErrDeviceCodeExpired, ErrAuthorizationPending} {
		assert.NotErrorIs(t, err, sentinel)
	}
	var authErr *SilentTokenAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid_client", authErr.Code())
}

func TestDeviceCodePollStopsAtExpiry(t *testing.T) {
	ts := newTokenServer(t, pendingReply("authorization_pending"))
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	flow := &DeviceCodeFlow{
		ClientID:  "app",
		Authority: ts.authority(),
		Now:       func() time.Time { return now },
		Sleep: func(_ context.Context, d time.Duration) error {
			now = now.Add(d)
			return nil
		},
	}

	_, err := flow.Poll(context.Background(), &DeviceAuthorization{DeviceCode: "dc", Interval: 5, ExpiresIn: 12})
	assert.ErrorIs(t, err, ErrDeviceCodeExpired)
	assert.Equal(t, 3, ts.count())
}

func TestDeviceCodePollHonoursContext(t *testing.T) {
	ts := newTokenServer(t, pendingReply("authorization_pending"))
	ctx, cancel := context.WithCancel(context.Background())
	flow := &DeviceCodeFlow{
		ClientID:  "app",
		Authority: ts.authority(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return sleepContext(ctx, d)
		},
	}

	_, err := flow.Poll(ctx, &DeviceAuthorization{DeviceCode: "dc"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ts.count())
}

func TestDeviceCodeStart(t *testing.T) {
	ts := newTokenServer(t, tokenReply{http.StatusOK, `{"device_code":"dc","user_code":"ABCD-EFGH","verification_url":"https://www.microsoft.com/link","expires_in":"900","interval":"5","message":"Go to the link"}`})
	var sleeps []time.Duration
	flow := newTestDeviceFlow(ts, &sleeps)

	auth, err := flow.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dc", auth.DeviceCode)
	assert.Equal(t, "ABCD-EFGH", auth.UserCode)
	assert.Equal(t, "https://www.microsoft.com/link", auth.VerificationURI)
	assert.Equal(t, 900, auth.ExpiresIn)
	assert.Equal(t, 5*time.Second, auth.PollInterval())

	got := ts.last()
	assert.Equal(t, "/contoso/oauth2/v2.0/devicecode", got.path)
	assert.Equal(t, "app", got.form.Get("client_id"))
	assert.Equal(t, "User.Read offline_access", got.form.Get("scope"))
}

func TestDeviceCodeStartRejectsEmptyReply(t *testing.T) {
	ts := newTokenServer(t, tokenReply{http.StatusOK, `{"user_code":"x"}`})
	var sleeps []time.Duration
	_, err := newTestDeviceFlow(ts, &sleeps).Start(context.Background())
	assert.ErrorIs(t, err, ErrTokenResponse)
}

func TestDeviceAuthorizationDefaults(t *testing.T) {
	var auth DeviceAuthorization
	require.NoError(t, json.Unmarshal([]byte(`{"device_code":"dc","verification_uri":"https://microsoft.com/devicelogin","expires_in":600}`), &auth))
	assert.Equal(t, "https://microsoft.com/devicelogin", auth.VerificationURI)
	assert.Equal(t, 600, auth.ExpiresIn)
	assert.Equal(t, DefaultPollInterval, auth.PollInterval())
}
