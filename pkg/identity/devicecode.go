package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	// DefaultPollInterval is used when the server does not send one.
	DefaultPollInterval = 5 * time.Second
	// SlowDownIncrement is added to the interval on slow_down.
	SlowDownIncrement = 5 * time.Second
)

// DeviceAuthorization is the device-authorization response shown to the
// user.
type DeviceAuthorization struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	Message         string `json:"message"`
}

// UnmarshalJSON accepts verification_url, which the consumer endpoint uses.
func (d *DeviceAuthorization) UnmarshalJSON(data []byte) error {
	type plain DeviceAuthorization
	var raw struct {
		plain
		VerificationURL string      `json:"verification_url"`
		ExpiresIn       json.Number `json:"expires_in"`
		Interval        json.Number `json:"interval"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = DeviceAuthorization(raw.plain)
	if d.VerificationURI == "" {
		d.VerificationURI = raw.VerificationURL
	}
	if n, err := raw.ExpiresIn.Int64(); err == nil {
		d.ExpiresIn = int(n)
	}
	if n, err := raw.Interval.Int64(); err == nil {
		d.Interval = int(n)
	}
	return nil
}

// PollInterval is the interval to start polling with, at least a second.
func (d *DeviceAuthorization) PollInterval() time.Duration {
	if d.Interval <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(d.Interval) * time.Second
}

// DeviceCodeEvent is one classified poll outcome.
type DeviceCodeEvent struct {
	Err      error
	Interval time.Duration
}

// DeviceCodeFlow runs the device authorization grant.
type DeviceCodeFlow struct {
	ClientID  string
	Authority Authority
	Scopes    []string
	Executor  *Executor

	// Sleep waits between polls; tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now is the clock used for the expiry check.
	Now func() time.Time
	// OnEvent, when set, is called after every poll.
	OnEvent func(DeviceCodeEvent)
}

func (f *DeviceCodeFlow) executor() *Executor {
	if f.Executor == nil {
		f.Executor = NewExecutor()
	}
	return f.Executor
}

// Start requests a device and user code.
func (f *DeviceCodeFlow) Start(ctx context.Context) (*DeviceAuthorization, error) {
	if f.ClientID == "" {
		return nil, missing("client_id")
	}
	if len(f.Scopes) == 0 {
		return nil, missing("scope")
	}
	body, err := f.executor().post(ctx, &TokenRequest{
		Endpoint: f.Authority.DeviceCodeEndpoint(),
		Form: url.Values{
			"client_id": {f.ClientID},
			"scope":     {scopeParam(f.Scopes)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}
	var auth DeviceAuthorization
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("%w: device authorization: %w", ErrTokenResponse, err)
	}
	if auth.DeviceCode == "" {
		return nil, fmt.Errorf("%w: device authorization has no device_code", ErrTokenResponse)
	}
	return &auth, nil
}

// PollOnce asks the token endpoint once. A user who has not finished
// signing in yields ErrAuthorizationPending or ErrSlowDown.
func (f *DeviceCodeFlow) PollOnce(ctx context.Context, deviceCode string) (*Token, error) {
	cred := &DeviceCodeCredential{ClientID: f.ClientID, DeviceCode: deviceCode, Authority: f.Authority, Scopes: f.Scopes}
	tok, err := f.executor().Execute(ctx, cred)
	if err != nil {
		return nil, classifyDeviceCodeError(err)
	}
	return tok, nil
}

// classifyDeviceCodeError maps token endpoint codes to the device-code
// sentinels. Besides the RFC 8628 codes it accepts the forms Entra ID
// returns: access_denied for a declined sign-in, invalid_grant for a device
// code the endpoint does not recognise and code_expired for an expired one.
// Any other code is returned unchanged.
func classifyDeviceCodeError(err error) error {
	var authErr *SilentTokenAuthError
	if !errors.As(err, &authErr) {
		return err
	}
	switch authErr.Code() {
	case "authorization_pending":
		return ErrAuthorizationPending
	case "slow_down":
		return ErrSlowDown
	case "authorization_declined", "access_denied":
		return fmt.Errorf("%w: %w", ErrUserDeclined, err)
	case "bad_verification_code", "invalid_grant":
		return fmt.Errorf("%w: %w", ErrBadDeviceCode, err)
	case "expired_token", "code_expired":
		return fmt.Errorf("%w: %w", ErrDeviceCodeExpired, err)
	}
	return err
}

// Poll polls until the user signs in, declines, or the code expires.
// pending waits one interval, slow_down first widens the interval by five
// seconds.
func (f *DeviceCodeFlow) Poll(ctx context.Context, auth *DeviceAuthorization) (*Token, error) {
	if auth == nil || auth.DeviceCode == "" {
		return nil, missing("device_code")
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}
	sleep := f.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	interval := max(auth.PollInterval(), time.Second)
	started := now()
	expiresIn := time.Duration(auth.ExpiresIn) * time.Second

	for {
		if expiresIn > 0 && now().Sub(started) >= expiresIn {
			return nil, ErrDeviceCodeExpired
		}
		tok, err := f.PollOnce(ctx, auth.DeviceCode)
		switch {
		case err == nil:
			f.emit(DeviceCodeEvent{Interval: interval})
			return tok, nil
		case errors.Is(err, ErrAuthorizationPending):
		case errors.Is(err, ErrSlowDown):
			interval += SlowDownIncrement
		default:
			f.emit(DeviceCodeEvent{Err: err, Interval: interval})
			return nil, err
		}
		f.emit(DeviceCodeEvent{Err: err, Interval: interval})
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}

func (f *DeviceCodeFlow) emit(ev DeviceCodeEvent) {
	if f.OnEvent != nil {
		f.OnEvent(ev)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
