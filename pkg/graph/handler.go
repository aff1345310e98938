package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// RequestComponents is what a handler composes: method, URL, the handler
// level header defaults and the expected response kind.
type RequestComponents struct {
	Method string
	URL    *URL
	Header http.Header
	Kind   ResponseKind
}

// RequestHandler carries one composed request. Chain methods record the
// first failure instead of returning it, so calls compose; the error comes
// back from Build, Send, Paging or UploadSession.
//
// Header precedence, lowest first: client defaults, handler defaults set by
// DefaultHeader (generated code uses these), call-site Header/Headers.
type RequestHandler struct {
	client     *Client
	components RequestComponents
	callHeader http.Header
	body       Body
	bodyUsed   bool
	err        error
}

func newRequestHandler(c *Client, components RequestComponents, body Body) *RequestHandler {
	if components.Header == nil {
		components.Header = make(http.Header)
	}
	return &RequestHandler{
		client:     c,
		components: components,
		callHeader: make(http.Header),
		body:       body,
	}
}

func newErrorHandler(c *Client, method string, u *URL, err error) *RequestHandler {
	h := newRequestHandler(c, RequestComponents{Method: method, URL: u}, NoBody())
	h.err = err
	return h
}

func (h *RequestHandler) fail(err error) *RequestHandler {
	if h.err == nil && err != nil {
		h.err = err
	}
	return h
}

// Err returns the deferred error, if any.
func (h *RequestHandler) Err() error { return h.err }

// IsErr reports whether a deferred error exists.
func (h *RequestHandler) IsErr() bool { return h.err != nil }

// Components returns the composed method, URL, defaults and kind.
func (h *RequestHandler) Components() RequestComponents { return h.components }

// URL renders the current URL, or "" when none could be composed.
func (h *RequestHandler) URL() string {
	if h.components.URL == nil {
		return ""
	}
	return h.components.URL.String()
}

// Header sets a call-site header.
func (h *RequestHandler) Header(key, value string) *RequestHandler {
	if h.err != nil {
		return h
	}
	h.callHeader.Set(key, value)
	return h
}

// Headers sets call-site headers; later values for a key win.
func (h *RequestHandler) Headers(header http.Header) *RequestHandler {
	if h.err != nil {
		return h
	}
	for k, vs := range header {
		for i, v := range vs {
			if i == 0 {
				h.callHeader.Set(k, v)
			} else {
				h.callHeader.Add(k, v)
			}
		}
	}
	return h
}

// DefaultHeader sets a handler-level default that call-site headers
// override.
func (h *RequestHandler) DefaultHeader(key, value string) *RequestHandler {
	if h.err != nil {
		return h
	}
	h.components.Header.Set(key, value)
	return h
}

// Query merges query pairs from a QueryEncoder (such as ODataQuery),
// url.Values, map[string]string, []QueryPair, or any value that serializes
// to a flat JSON object. Keys already present are replaced.
func (h *RequestHandler) Query(q any) *RequestHandler {
	if h.err != nil {
		return h
	}
	pairs, err := queryPairsOf(q)
	if err != nil {
		return h.fail(err)
	}
	for _, p := range pairs {
		h.components.URL.SetQueryPair(p.Key, p.Value)
	}
	return h
}

// AppendQueryPair adds a raw pair without replacing existing keys.
func (h *RequestHandler) AppendQueryPair(key, value string) *RequestHandler {
	if h.err != nil {
		return h
	}
	h.components.URL.AppendQueryPair(key, value)
	return h
}

// ExtendPath appends path segments.
func (h *RequestHandler) ExtendPath(segments ...string) *RequestHandler {
	if h.err != nil {
		return h
	}
	h.components.URL.ExtendPath(segments...)
	return h
}

// Select adds $select fields.
func (h *RequestHandler) Select(fields ...string) *RequestHandler {
	return h.withURL(func(u *URL) { u.Select(fields...) })
}

// Expand adds $expand relationships.
func (h *RequestHandler) Expand(fields ...string) *RequestHandler {
	return h.withURL(func(u *URL) { u.Expand(fields...) })
}

// Filter sets $filter.
func (h *RequestHandler) Filter(expr string) *RequestHandler {
	return h.withURL(func(u *URL) { u.Filter(expr) })
}

// OrderBy adds $orderby clauses.
func (h *RequestHandler) OrderBy(clauses ...string) *RequestHandler {
	return h.withURL(func(u *URL) { u.OrderBy(clauses...) })
}

// Search sets $search and the ConsistencyLevel header directory queries
// need.
func (h *RequestHandler) Search(expr string) *RequestHandler {
	return h.withURL(func(u *URL) { u.Search(expr) }).DefaultHeader("ConsistencyLevel", "eventual")
}

// Top sets $top.
func (h *RequestHandler) Top(n int) *RequestHandler {
	if n < 0 {
		return h.fail(fmt.Errorf("%w: $top must not be negative", ErrInvalidArgument))
	}
	return h.withURL(func(u *URL) { u.Top(n) })
}

// Skip sets $skip.
func (h *RequestHandler) Skip(n int) *RequestHandler {
	if n < 0 {
		return h.fail(fmt.Errorf("%w: $skip must not be negative", ErrInvalidArgument))
	}
	return h.withURL(func(u *URL) { u.Skip(n) })
}

// Count sets $count=true.
func (h *RequestHandler) Count() *RequestHandler {
	return h.withURL(func(u *URL) { u.Count() })
}

// Format sets $format.
func (h *RequestHandler) Format(ext string) *RequestHandler {
	return h.withURL(func(u *URL) { u.SetFormat(ext) })
}

func (h *RequestHandler) withURL(fn func(*URL)) *RequestHandler {
	if h.err != nil {
		return h
	}
	fn(h.components.URL)
	return h
}

// Body replaces the request body.
func (h *RequestHandler) Body(b Body) *RequestHandler {
	if h.err != nil {
		return h
	}
	h.body = b
	h.bodyUsed = false
	return h
}

// JSON sets a JSON body.
func (h *RequestHandler) JSON(v any) *RequestHandler {
	return h.Body(JSONBody(v))
}

func (h *RequestHandler) preflight(err error) error {
	pf := &PreFlightError{Header: h.mergedHeader(), Err: err}
	if h.components.URL != nil {
		pf.URL = h.components.URL.String()
	}
	return pf
}

func (h *RequestHandler) mergedHeader() http.Header {
	merged := make(http.Header)
	for _, layer := range []http.Header{h.client.headers, h.components.Header, h.callHeader} {
		for k, vs := range layer {
			merged[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
		}
	}
	return merged
}

// Build returns the underlying *http.Request with the bearer token applied.
// It surfaces the deferred error as a *PreFlightError.
func (h *RequestHandler) Build(ctx context.Context) (*http.Request, error) {
	if h.err != nil {
		return nil, h.preflight(h.err)
	}
	if h.components.URL == nil {
		panic("graph: request handler has neither url nor error")
	}
	if h.bodyUsed {
		return nil, h.preflight(ErrBodyConsumed)
	}

	reader, length, contentType, err := h.body.open()
	if err != nil {
		return nil, h.preflight(err)
	}

	target := h.components.URL.URL()
	if h.client.httpConfig.HTTPSOnly && target.Scheme != "https" {
		return nil, h.preflight(fmt.Errorf("%w: https required, got %s", ErrInvalidArgument, target.Scheme))
	}

	token, err := h.client.auth.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, h.components.Method, target.String(), reader)
	if err != nil {
		return nil, h.preflight(fmt.Errorf("%w: %w", ErrInvalidArgument, err))
	}
	if h.body.kind == bodyStream {
		h.bodyUsed = true
		req.ContentLength = length
	}

	req.Header.Set("Accept", "*/*")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range h.mergedHeader() {
		req.Header[k] = vs
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// Send builds and executes the request. On a non-2xx status both the
// envelope and a *GraphError are returned.
func (h *RequestHandler) Send(ctx context.Context) (*Response, error) {
	req, err := h.Build(ctx)
	if err != nil {
		return nil, err
	}
	return h.client.do(req)
}

// Download streams a 2xx response body into w instead of buffering it.
func (h *RequestHandler) Download(ctx context.Context, w io.Writer) (int64, error) {
	req, err := h.Build(ctx)
	if err != nil {
		return 0, err
	}
	if h.client.limiter != nil {
		if err := h.client.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("%w: waiting for rate limiter: %w", ErrTransport, err)
		}
	}
	res, err := h.client.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Redacted(), err)
	}
	defer closeBodySafely(res.Body, h.client.logger, "download")

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return 0, newGraphError(&Response{URL: req.URL, StatusCode: res.StatusCode, Header: res.Header, Body: body})
	}
	n, err := io.Copy(w, res.Body)
	if err != nil {
		return n, fmt.Errorf("%w: writing download: %w", ErrIO, err)
	}
	return n, nil
}

// Paging returns the paging driver for this request.
func (h *RequestHandler) Paging() *Pager {
	return &Pager{handler: h}
}
