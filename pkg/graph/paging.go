package graph

import (
	"context"
	"fmt"
	"iter"
	"net/http"
)

// Pager follows @odata.nextLink from an initial request. Follow-up pages
// are plain GETs to the next link, verbatim, with the first request's
// headers (and so its bearer token) and no body.
type Pager struct {
	handler *RequestHandler
}

// PageResult is one item of the channel mode: a page or the error that
// ended the sequence.
type PageResult struct {
	Response *Response
	Err      error
}

// All iterates pages in server order. A failing page is yielded with its
// error and ends the iteration. Cancelling ctx stops before the next link
// is fetched.
func (p *Pager) All(ctx context.Context) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		c := p.handler.client
		req, err := p.handler.Build(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		resp, err := c.do(req)
		if err != nil {
			yield(resp, err)
			return
		}
		if !yield(resp, nil) {
			return
		}

		header := pageHeader(req.Header)
		for next := resp.NextLink(); next != ""; next = resp.NextLink() {
			if err := ctx.Err(); err != nil {
				return
			}
			nextReq, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
			if err != nil {
				yield(nil, fmt.Errorf("%w: next link %q: %w", ErrInvalidArgument, next, err))
				return
			}
			nextReq.Header = header.Clone()
			c.logger.Debugf("Fetching next page: %s", next)
			resp, err = c.do(nextReq)
			if err != nil {
				yield(resp, err)
				return
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

// pageHeader keeps everything but the body headers and the per-request id.
func pageHeader(h http.Header) http.Header {
	out := h.Clone()
	out.Del("Content-Type")
	out.Del("Content-Length")
	out.Del("client-request-id")
	return out
}

// Collect returns every page in order. On failure it returns the pages
// fetched before the failing one together with the error.
func (p *Pager) Collect(ctx context.Context) ([]*Response, error) {
	var pages []*Response
	for resp, err := range p.All(ctx) {
		if err != nil {
			return pages, err
		}
		pages = append(pages, resp)
	}
	if err := ctx.Err(); err != nil {
		return pages, err
	}
	return pages, nil
}

// Channel runs the pager in a goroutine and delivers pages on the returned
// channel. Closing the channel marks the end. Cancel ctx to stop the
// producer; it exits at the next link boundary.
func (p *Pager) Channel(ctx context.Context, buffer int) <-chan PageResult {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan PageResult, buffer)
	go func() {
		defer close(ch)
		for resp, err := range p.All(ctx) {
			select {
			case ch <- PageResult{Response: resp, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
