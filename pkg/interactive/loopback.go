package interactive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/browser"
)

const loopbackDoneHTML = `<!DOCTYPE html><html><head><title>Signed in</title></head>
<body><p>Authentication complete. You can close this window.</p></body></html>`

// LoopbackWindow signs in through the system browser. It listens on the
// loopback redirect URI and reports every request as a navigation.
type LoopbackWindow struct {
	// OpenBrowser opens the start URL; tests replace it.
	OpenBrowser func(url string) error

	listener    net.Listener
	server      *http.Server
	redirectURL *url.URL
	navs        chan string
	destroyed   chan struct{}
	closeOnce   sync.Once
}

// NewLoopbackWindow starts listening on redirectURI, which must be an http
// URL on localhost or a loopback address. Port 0 picks a free port; read
// the final URI back from RedirectURI.
func NewLoopbackWindow(redirectURI string) (*LoopbackWindow, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect uri: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("loopback redirect uri must use http, got %q", u.Scheme)
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("redirect host %q is not a loopback address", host)
	}
	port := u.Port()
	if port == "" {
		port = "0"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", u.Host, err)
	}
	u.Host = net.JoinHostPort(host, fmt.Sprint(ln.Addr().(*net.TCPAddr).Port))

	w := &LoopbackWindow{
		OpenBrowser: browser.OpenURL,
		listener:    ln,
		redirectURL: u,
		navs:        make(chan string, 16),
		destroyed:   make(chan struct{}),
	}
	w.server = &http.Server{Handler: http.HandlerFunc(w.serve), ReadHeaderTimeout: 10 * time.Second}
	return w, nil
}

// RedirectURI is the URI the listener is bound to.
func (w *LoopbackWindow) RedirectURI() string { return w.redirectURL.String() }

func (w *LoopbackWindow) serve(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/favicon.ico" {
		http.NotFound(rw, r)
		return
	}
	nav := (&url.URL{Scheme: "http", Host: w.redirectURL.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}).String()
	select {
	case w.navs <- nav:
	default:
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = rw.Write([]byte(loopbackDoneHTML))
}

// Open implements Window.
func (w *LoopbackWindow) Open(_ context.Context, startURL string, _ Options) error {
	go func() {
		if err := w.server.Serve(w.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.Close()
		}
	}()
	if err := w.OpenBrowser(startURL); err != nil {
		w.Close()
		return fmt.Errorf("opening browser: %w", err)
	}
	return nil
}

// Navigations implements Window.
func (w *LoopbackWindow) Navigations() <-chan string { return w.navs }

// Destroyed implements Window. It fires only when the listener dies.
func (w *LoopbackWindow) Destroyed() <-chan struct{} { return w.destroyed }

// Close implements Window. It is safe to call more than once.
func (w *LoopbackWindow) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.destroyed)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = w.server.Shutdown(ctx)
		if err == nil || errors.Is(err, net.ErrClosed) {
			err = w.listener.Close()
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
		}
	})
	return err
}
