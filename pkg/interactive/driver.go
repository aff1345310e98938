package interactive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonimelisma/msgraph-client/internal/logger"
)

// DefaultCloseDelay is how long the driver waits between emitting its event
// and closing the window.
const DefaultCloseDelay = 200 * time.Millisecond

// Driver runs one sign-in window to a single Event.
type Driver struct {
	window     Window
	opts       Options
	closeDelay time.Duration
	logger     Logger
	now        func() time.Time
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithCloseDelay overrides DefaultCloseDelay.
func WithCloseDelay(d time.Duration) DriverOption {
	return func(dr *Driver) {
		if d >= 0 {
			dr.closeDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) DriverOption {
	return func(dr *Driver) {
		if l != nil {
			dr.logger = l
		}
	}
}

// NewDriver creates a driver for w.
func NewDriver(w Window, opts Options, driverOpts ...DriverOption) *Driver {
	d := &Driver{
		window:     w,
		opts:       opts,
		closeDelay: DefaultCloseDelay,
		logger:     logger.NoopLogger{},
		now:        time.Now,
	}
	for _, o := range driverOpts {
		o(d)
	}
	return d
}

// Run opens the window at startURL and returns a channel that delivers
// exactly one Event and is then closed. The window is closed after the
// event is sent. Cancelling ctx ends the run with CloseRequested.
func (d *Driver) Run(ctx context.Context, startURL string, redirects []RedirectURI) (<-chan Event, error) {
	if len(redirects) == 0 {
		return nil, errors.New("at least one redirect uri is required")
	}
	if d.opts.ClearBrowsingData {
		if c, ok := d.window.(BrowsingDataClearer); ok {
			if err := c.ClearBrowsingData(); err != nil {
				d.logger.Warnf("Failed to clear browsing data: %v", err)
			}
		}
	}
	if err := d.window.Open(ctx, startURL, d.opts); err != nil {
		return nil, fmt.Errorf("opening sign-in window: %w", err)
	}

	events := make(chan Event, 1)
	go d.loop(ctx, redirects, events)
	return events, nil
}

// Await is Run followed by a receive.
func (d *Driver) Await(ctx context.Context, startURL string, redirects []RedirectURI) (Event, error) {
	events, err := d.Run(ctx, startURL, redirects)
	if err != nil {
		return nil, err
	}
	return <-events, nil
}

func (d *Driver) loop(ctx context.Context, redirects []RedirectURI, events chan<- Event) {
	defer close(events)

	start := d.now()
	var timeout <-chan time.Time
	if d.opts.Timeout > 0 {
		timer := time.NewTimer(d.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	ev := d.wait(ctx, redirects, start, timeout)
	events <- ev

	time.Sleep(d.closeDelay)
	if err := d.window.Close(); err != nil {
		d.logger.Warnf("Failed to close sign-in window: %v", err)
	}
}

func (d *Driver) wait(ctx context.Context, redirects []RedirectURI, start time.Time, timeout <-chan time.Time) Event {
	navs := d.window.Navigations()
	for {
		select {
		case nav, ok := <-navs:
			if !ok {
				return WindowClosed{Reason: WindowDestroyed}
			}
			d.logger.Debug("sign-in window navigated", "url", nav)
			if ev := classify(nav, redirects); ev != nil {
				return ev
			}
		case <-d.window.Destroyed():
			return WindowClosed{Reason: WindowDestroyed}
		case <-timeout:
			return WindowClosed{Reason: Timeout, Start: start, Requested: d.opts.Timeout}
		case <-ctx.Done():
			return WindowClosed{Reason: CloseRequested}
		}
	}
}

// classify returns the terminal event for nav, or nil to keep waiting.
func classify(nav string, redirects []RedirectURI) Event {
	for _, r := range redirects {
		if r.Matches(nav) {
			return ReachedRedirectURI{URL: nav}
		}
	}
	for _, r := range redirects {
		if r.Resembles(nav) {
			return InvalidRedirectURI{URL: nav}
		}
	}
	return nil
}
