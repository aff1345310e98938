package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyJSON
	bodyStream
)

// Body is the optional payload of a request: nothing, a JSON value that is
// serialized when the request is built, or a raw stream of known length.
type Body struct {
	kind        bodyKind
	value       any
	reader      io.Reader
	length      int64
	contentType string
}

// NoBody is the empty body.
func NoBody() Body { return Body{} }

// JSONBody serializes v with application/json when the request is built.
func JSONBody(v any) Body {
	if v == nil {
		return Body{}
	}
	return Body{kind: bodyJSON, value: v, contentType: "application/json"}
}

// StreamBody sends length bytes from r. An empty contentType defaults to
// application/octet-stream.
func StreamBody(r io.Reader, length int64, contentType string) Body {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Body{kind: bodyStream, reader: r, length: length, contentType: contentType}
}

// IsEmpty reports whether the body carries nothing.
func (b Body) IsEmpty() bool { return b.kind == bodyNone }

// open materializes the body for one request.
func (b Body) open() (io.Reader, int64, string, error) {
	switch b.kind {
	case bodyJSON:
		if raw, ok := b.value.(json.RawMessage); ok {
			return bytes.NewReader(raw), int64(len(raw)), b.contentType, nil
		}
		data, err := json.Marshal(b.value)
		if err != nil {
			return nil, 0, "", fmt.Errorf("%w: serializing body: %w", ErrInvalidArgument, err)
		}
		return bytes.NewReader(data), int64(len(data)), b.contentType, nil
	case bodyStream:
		if b.reader == nil {
			return nil, 0, "", fmt.Errorf("%w: stream body has no reader", ErrInvalidArgument)
		}
		return b.reader, b.length, b.contentType, nil
	}
	return nil, 0, "", nil
}
