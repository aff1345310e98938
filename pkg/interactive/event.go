package interactive

import (
	"fmt"
	"time"
)

// Event is the single outcome of a Driver run.
type Event interface {
	event()
}

// ReachedRedirectURI is the first navigation that matched a redirect URI.
type ReachedRedirectURI struct {
	URL string
}

// InvalidRedirectURI is an authorization response delivered to the
// redirect host that failed the matcher.
type InvalidRedirectURI struct {
	URL string
}

// CloseReason says why the window closed without reaching a redirect.
type CloseReason int

const (
	CloseRequested CloseReason = iota
	Timeout
	WindowDestroyed
)

func (r CloseReason) String() string {
	switch r {
	case CloseRequested:
		return "close requested"
	case Timeout:
		return "timed out"
	case WindowDestroyed:
		return "window destroyed"
	}
	return fmt.Sprintf("CloseReason(%d)", int(r))
}

// WindowClosed ends a run without a redirect. Start and Requested are set
// for Timeout.
type WindowClosed struct {
	Reason    CloseReason
	Start     time.Time
	Requested time.Duration
}

func (ReachedRedirectURI) event() {}
func (InvalidRedirectURI) event() {}
func (WindowClosed) event()       {}
