// Package graph is the request-execution core of the Microsoft Graph client:
// endpoint composition, the chainable request handler, paging, and
// resumable upload sessions. Generated resource clients sit on top of it.
package graph

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tonimelisma/msgraph-client/internal/logger"
	"golang.org/x/oauth2"
)

// GraphHost is the public Microsoft Graph host.
const GraphHost = "https://graph.microsoft.com"

// APIVersion selects the Graph surface.
type APIVersion string

const (
	V1   APIVersion = "v1.0"
	Beta APIVersion = "beta"
)

// DefaultTimeout bounds every request except upload chunks.
const DefaultTimeout = 30 * time.Second

// MinUploadThroughput is the slowest link, in bytes per second, an upload
// chunk is given time for. A chunk gets at least DefaultTimeout.
const MinUploadThroughput = 32 * 1024

// Authenticator supplies bearer tokens. identity.ClientApplication
// implements it with a cache-first lookup.
type Authenticator interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is an Authenticator for a fixed token.
type StaticToken string

// AccessToken implements Authenticator.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", ErrReauthRequired
	}
	return string(t), nil
}

// OAuth2Authenticator adapts an oauth2.TokenSource.
type OAuth2Authenticator struct {
	Source oauth2.TokenSource
}

// AccessToken implements Authenticator.
func (a OAuth2Authenticator) AccessToken(context.Context) (string, error) {
	tok, err := a.Source.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// HTTPConfig holds the transport settings of a Client.
type HTTPConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	HTTPSOnly    bool
}

// DefaultHTTPConfig allows one redirect hop and HTTPS only.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:      DefaultTimeout,
		MaxRedirects: 1,
		HTTPSOnly:    true,
	}
}

// NewConfiguredHTTPClient builds a pooled client with TLS 1.2 as the floor.
func NewConfiguredHTTPClient(cfg HTTPConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return NewConfiguredHTTPClientWithTransport(cfg, transport)
}

// NewConfiguredHTTPClientWithTransport applies cfg around a caller-supplied
// transport.
func NewConfiguredHTTPClientWithTransport(cfg HTTPConfig, transport http.RoundTripper) *http.Client {
	return &http.Client{
		Timeout:       cfg.Timeout,
		Transport:     transport,
		CheckRedirect: redirectPolicy(cfg),
	}
}

func redirectPolicy(cfg HTTPConfig) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > cfg.MaxRedirects {
			return fmt.Errorf("stopped after %d redirect(s)", cfg.MaxRedirects)
		}
		if cfg.HTTPSOnly && req.URL.Scheme != "https" {
			return fmt.Errorf("refusing redirect to non-https url %s", req.URL.Redacted())
		}
		return nil
	}
}

// Client owns the connection pool, base URL and application-level header
// defaults. It is safe for concurrent use.
type Client struct {
	auth       Authenticator
	httpClient *http.Client
	httpConfig HTTPConfig
	baseURL    *URL
	headers    http.Header
	limiter    *RateLimiter
	logger     Logger
	dump       bool
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithHTTPConfig rebuilds the HTTP client from cfg.
func WithHTTPConfig(cfg HTTPConfig) Option {
	return func(c *Client) error {
		c.httpConfig = cfg
		c.httpClient = NewConfiguredHTTPClient(cfg)
		return nil
	}
}

// WithAPIVersion selects v1.0 or beta on the public host.
func WithAPIVersion(v APIVersion) Option {
	return func(c *Client) error {
		if v != V1 && v != Beta {
			return fmt.Errorf("%w: unknown api version %q", ErrInvalidArgument, v)
		}
		c.baseURL = MustParseURL(GraphHost + "/" + string(v))
		return nil
	}
}

// WithBaseURL points the client at another host, e.g. a national cloud or
// a test server.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		u, err := ParseURL(raw)
		if err != nil {
			return err
		}
		c.baseURL = u
		return nil
	}
}

// WithDefaultHeader adds an application-level header default.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) error {
		c.headers.Set(key, value)
		return nil
	}
}

// WithRateLimit throttles requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		c.limiter = NewRateLimiter(rps, burst)
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Client) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// WithRequestDump logs full request and response dumps at debug level.
func WithRequestDump(enabled bool) Option {
	return func(c *Client) error {
		c.dump = enabled
		return nil
	}
}

// WithHTTPSOnly toggles the https scheme check on outgoing requests.
func WithHTTPSOnly(enabled bool) Option {
	return func(c *Client) error {
		c.httpConfig.HTTPSOnly = enabled
		if c.httpClient != nil {
			c.httpClient.CheckRedirect = redirectPolicy(c.httpConfig)
		}
		return nil
	}
}

// NewClient creates a Client bound to auth. The default base is the v1.0
// endpoint of the public cloud.
func NewClient(auth Authenticator, opts ...Option) (*Client, error) {
	if auth == nil {
		return nil, fmt.Errorf("%w: authenticator is required", ErrInvalidArgument)
	}
	cfg := DefaultHTTPConfig()
	c := &Client{
		auth:       auth,
		httpConfig: cfg,
		httpClient: NewConfiguredHTTPClient(cfg),
		baseURL:    MustParseURL(GraphHost + "/" + string(V1)),
		headers:    make(http.Header),
		logger:     logger.NoopLogger{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BaseURL returns a copy of the base endpoint.
func (c *Client) BaseURL() *URL { return c.baseURL.Clone() }

// Logger returns the client's logger.
func (c *Client) Logger() Logger { return c.logger }

// Request starts a handler for path, which is either relative to the base
// URL or an absolute URL such as a next link.
func (c *Client) Request(method, path string) *RequestHandler {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		u, err := ParseURL(path)
		if err != nil {
			return newErrorHandler(c, method, nil, err)
		}
		return newRequestHandler(c, RequestComponents{Method: method, URL: u}, NoBody())
	}
	u := c.baseURL.Clone().ExtendPath(path)
	return newRequestHandler(c, RequestComponents{Method: method, URL: u}, NoBody())
}

// Resource returns the root client for a resource identity.
func (c *Client) Resource(identity ResourceIdentity) ResourceClient {
	return ResourceClient{client: c, config: ResourceConfig{BaseURL: c.baseURL.Clone(), Identity: identity}}
}

// ResourceByID returns the root client bound to id.
func (c *Client) ResourceByID(identity ResourceIdentity, id string) ResourceClient {
	rc := c.Resource(identity)
	rc.config.ID = id
	return rc
}

// chunkTimeout bounds one upload chunk of n bytes.
func (c *Client) chunkTimeout(n int64) time.Duration {
	return max(c.httpConfig.Timeout, DefaultTimeout, time.Duration(n)*time.Second/MinUploadThroughput)
}

// uploadHTTPClient shares the pool but drops the whole-request timeout;
// chunk PUTs carry their own deadline.
func (c *Client) uploadHTTPClient() *http.Client {
	hc := *c.httpClient
	hc.Timeout = 0
	return &hc
}

// do sends req and drains the response into an envelope. A non-2xx status
// returns both the envelope and a *GraphError.
func (c *Client) do(req *http.Request) (*Response, error) {
	return c.doWith(c.httpClient, req)
}

func (c *Client) doWith(hc *http.Client, req *http.Request) (*Response, error) {
	if c.httpConfig.HTTPSOnly && req.URL.Scheme != "https" {
		return nil, &PreFlightError{URL: req.URL.Redacted(), Header: req.Header, Err: fmt.Errorf("%w: https required", ErrInvalidArgument)}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("%w: waiting for rate limiter: %w", ErrTransport, err)
		}
	}
	if req.Header.Get("client-request-id") == "" {
		req.Header.Set("client-request-id", uuid.NewString())
	}
	c.dumpRequest(req)

	res, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Redacted(), err)
	}
	defer closeBodySafely(res.Body, c.logger, "response")
	c.dumpResponse(res)

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", ErrTransport, err)
	}
	resp := &Response{
		URL:        req.URL,
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       body,
	}
	if resp.IsSuccess() {
		return resp, nil
	}
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusServiceUnavailable {
		if wait := parseRetryAfter(res.Header, time.Now()); wait > 0 {
			c.logger.Warnf("Throttled by %s, retry after %s", req.URL.Host, wait)
			if c.limiter != nil {
				c.limiter.RecordRetryAfter(wait)
			}
		}
	}
	graphErr := newGraphError(resp)
	c.logger.Debug("graph request failed", "method", req.Method, "url", req.URL.Redacted(), "status", res.StatusCode, "code", graphErr.Code())
	return resp, graphErr
}

func (c *Client) dumpRequest(req *http.Request) {
	if !c.dump {
		return
	}
	dump, err := httputil.DumpRequestOut(redactedClone(req), false)
	if err != nil {
		c.logger.Debugf("Error dumping request: %v", err)
		return
	}
	c.logger.Debugf("Request:\n%s", dump)
}

func (c *Client) dumpResponse(res *http.Response) {
	if !c.dump {
		return
	}
	dump, err := httputil.DumpResponse(res, false)
	if err != nil {
		c.logger.Debugf("Error dumping response: %v", err)
		return
	}
	c.logger.Debugf("Response:\n%s", dump)
}

func redactedClone(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(nil))
	clone.ContentLength = 0
	if clone.Header.Get("Authorization") != "" {
		clone.Header.Set("Authorization", "Bearer [redacted]")
	}
	return clone
}
