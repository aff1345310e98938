package interactive

import (
	"context"
	"time"
)

// Theme is the preferred window theme.
type Theme int

const (
	ThemeSystem Theme = iota
	ThemeLight
	ThemeDark
)

// Options are the UI knobs of a sign-in window. Windows ignore what they
// cannot honour.
type Options struct {
	WindowTitle       string
	Timeout           time.Duration
	ClearBrowsingData bool
	Theme             Theme
}

// Window is a sign-in surface. Navigations reports every URL the window
// loads; Destroyed is closed when the user closes the window.
type Window interface {
	Open(ctx context.Context, startURL string, opts Options) error
	Navigations() <-chan string
	Destroyed() <-chan struct{}
	Close() error
}

// BrowsingDataClearer is implemented by windows with their own cookie
// store.
type BrowsingDataClearer interface {
	ClearBrowsingData() error
}
