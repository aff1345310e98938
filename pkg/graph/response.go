package graph

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
)

// ResponseKind is what an operation is expected to return.
type ResponseKind int

const (
	ResponseJSON ResponseKind = iota
	ResponseNoContent
	ResponseBytes
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseNoContent:
		return "no_content"
	case ResponseBytes:
		return "bytes"
	}
	return "json"
}

// Response is the envelope of a completed call. It is built for every
// response, including failed ones, and the body is always drained.
type Response struct {
	URL        *url.URL
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &DeserializationError{Response: r, Err: err}
	}
	return nil
}

// RawJSON returns the body as a raw JSON value.
func (r *Response) RawJSON() json.RawMessage {
	return json.RawMessage(r.Body)
}

type odataLinks struct {
	NextLink  string `json:"@odata.nextLink"`
	DeltaLink string `json:"@odata.deltaLink"`
}

func (r *Response) links() odataLinks {
	var l odataLinks
	if len(r.Body) > 0 {
		_ = json.Unmarshal(r.Body, &l)
	}
	return l
}

// NextLink returns @odata.nextLink, or "" on the last page.
func (r *Response) NextLink() string { return r.links().NextLink }

// DeltaLink returns @odata.deltaLink when present.
func (r *Response) DeltaLink() string { return r.links().DeltaLink }

// Result is a response plus its decoded value. Err is set when decoding
// failed; Response is kept either way.
type Result[T any] struct {
	Response *Response
	Value    T
	Err      error
}

// Decode deserializes the response body into T.
func Decode[T any](resp *Response) Result[T] {
	res := Result[T]{Response: resp}
	if resp == nil {
		res.Err = &DeserializationError{Err: errNilResponse}
		return res
	}
	res.Err = resp.JSON(&res.Value)
	return res
}

var errNilResponse = errors.New("nil response")

// Collection is the common OData collection envelope.
type Collection[T any] struct {
	Value     []T    `json:"value"`
	NextLink  string `json:"@odata.nextLink,omitempty"`
	DeltaLink string `json:"@odata.deltaLink,omitempty"`
	Count     *int64 `json:"@odata.count,omitempty"`
}

// CollectValues flattens the value arrays of collected pages.
func CollectValues[T any](pages []*Response) ([]T, error) {
	var out []T
	for _, p := range pages {
		var c Collection[T]
		if err := p.JSON(&c); err != nil {
			return out, err
		}
		out = append(out, c.Value...)
	}
	return out, nil
}
