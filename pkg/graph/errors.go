package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors. GraphError and the other typed errors in this package
// match these with errors.Is so callers never need to inspect status codes.
var (
	ErrPreFlight        = errors.New("request could not be built")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrIO               = errors.New("i/o failure")
	ErrTransport        = errors.New("transport failure")
	ErrDeserialization  = errors.New("deserialization failed")
	ErrReauthRequired   = errors.New("re-authentication required")
	ErrAccessDenied     = errors.New("access denied")
	ErrRetryLater       = errors.New("retry later")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrResourceNotFound = errors.New("resource not found")
	ErrConflict         = errors.New("conflict")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrUploadFailed     = errors.New("upload chunk rejected")
	ErrSessionCancelled = errors.New("upload session cancelled")
	ErrSessionComplete  = errors.New("upload session already complete")
	ErrMissingUploadURL = errors.New("upload session response has no uploadUrl")
	ErrBodyConsumed     = errors.New("request body already consumed")
)

// ErrorKind is the flat classification of every failure the core reports.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPreFlight
	KindInvalidArgument
	KindIO
	KindTransport
	KindDeserialization
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindMethodNotAllowed
	KindNotAcceptable
	KindConflict
	KindGone
	KindLengthRequired
	KindPreconditionFailed
	KindRequestEntityTooLarge
	KindUnsupportedMediaType
	KindRequestRangeNotSatisfiable
	KindUnprocessableEntity
	KindLocked
	KindTooManyRequests
	KindInternalServerError
	KindNotImplemented
	KindServiceUnavailable
	KindGatewayTimeout
	KindInsufficientStorage
	KindBandwidthLimitExceeded
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                    "Unknown",
	KindPreFlight:                  "PreFlight",
	KindInvalidArgument:            "InvalidArgument",
	KindIO:                         "Io",
	KindTransport:                  "Transport",
	KindDeserialization:            "Deserialization",
	KindBadRequest:                 "BadRequest",
	KindUnauthorized:               "Unauthorized",
	KindForbidden:                  "Forbidden",
	KindNotFound:                   "NotFound",
	KindMethodNotAllowed:           "MethodNotAllowed",
	KindNotAcceptable:              "NotAcceptable",
	KindConflict:                   "Conflict",
	KindGone:                       "Gone",
	KindLengthRequired:             "LengthRequired",
	KindPreconditionFailed:         "PreconditionFailed",
	KindRequestEntityTooLarge:      "RequestEntityTooLarge",
	KindUnsupportedMediaType:       "UnsupportedMediaType",
	KindRequestRangeNotSatisfiable: "RequestRangeNotSatisfiable",
	KindUnprocessableEntity:        "UnprocessableEntity",
	KindLocked:                     "Locked",
	KindTooManyRequests:            "TooManyRequests",
	KindInternalServerError:        "InternalServerError",
	KindNotImplemented:             "NotImplemented",
	KindServiceUnavailable:         "ServiceUnavailable",
	KindGatewayTimeout:             "GatewayTimeout",
	KindInsufficientStorage:        "InsufficientStorage",
	KindBandwidthLimitExceeded:     "BandwidthLimitExceeded",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

var statusKinds = map[int]ErrorKind{
	http.StatusBadRequest:                   KindBadRequest,
	http.StatusUnauthorized:                 KindUnauthorized,
	http.StatusForbidden:                    KindForbidden,
	http.StatusNotFound:                     KindNotFound,
	http.StatusMethodNotAllowed:             KindMethodNotAllowed,
	http.StatusNotAcceptable:                KindNotAcceptable,
	http.StatusConflict:                     KindConflict,
	http.StatusGone:                         KindGone,
	http.StatusLengthRequired:               KindLengthRequired,
	http.StatusPreconditionFailed:           KindPreconditionFailed,
	http.StatusRequestEntityTooLarge:        KindRequestEntityTooLarge,
	http.StatusUnsupportedMediaType:         KindUnsupportedMediaType,
	http.StatusRequestedRangeNotSatisfiable: KindRequestRangeNotSatisfiable,
	http.StatusUnprocessableEntity:          KindUnprocessableEntity,
	http.StatusLocked:                       KindLocked,
	http.StatusTooManyRequests:              KindTooManyRequests,
	http.StatusInternalServerError:          KindInternalServerError,
	http.StatusNotImplemented:               KindNotImplemented,
	http.StatusServiceUnavailable:           KindServiceUnavailable,
	http.StatusGatewayTimeout:               KindGatewayTimeout,
	http.StatusInsufficientStorage:          KindInsufficientStorage,
	509:                                     KindBandwidthLimitExceeded,
}

// KindForStatus maps an HTTP status code onto the error taxonomy.
func KindForStatus(status int) ErrorKind {
	if kind, ok := statusKinds[status]; ok {
		return kind
	}
	return KindUnknown
}

// kindSentinels links the coarse sentinels inherited from the CLI to the
// finer status kinds.
var kindSentinels = map[ErrorKind]error{
	KindBadRequest:          ErrInvalidRequest,
	KindUnauthorized:        ErrReauthRequired,
	KindForbidden:           ErrAccessDenied,
	KindNotFound:            ErrResourceNotFound,
	KindConflict:            ErrConflict,
	KindTooManyRequests:     ErrRetryLater,
	KindServiceUnavailable:  ErrRetryLater,
	KindInsufficientStorage: ErrQuotaExceeded,
}

// ErrorMessage is the error body Graph returns on failed requests.
type ErrorMessage struct {
	Error *ErrorStatus `json:"error,omitempty"`
}

// ErrorStatus holds the code and message of a Graph error body.
type ErrorStatus struct {
	Code       string      `json:"code,omitempty"`
	Message    string      `json:"message,omitempty"`
	InnerError *InnerError `json:"innerError,omitempty"`
}

// InnerError carries request correlation data.
type InnerError struct {
	Code            string `json:"code,omitempty"`
	RequestID       string `json:"request-id,omitempty"`
	ClientRequestID string `json:"client-request-id,omitempty"`
	Date            string `json:"date,omitempty"`
}

// UnmarshalJSON accepts both innerError and inner_error spellings.
func (s *ErrorStatus) UnmarshalJSON(data []byte) error {
	var raw struct {
		Code       string      `json:"code"`
		Message    string      `json:"message"`
		InnerError *InnerError `json:"innerError"`
		InnerSnake *InnerError `json:"inner_error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Code = raw.Code
	s.Message = raw.Message
	s.InnerError = raw.InnerError
	if s.InnerError == nil {
		s.InnerError = raw.InnerSnake
	}
	return nil
}

// UnmarshalJSON accepts request_id alongside request-id.
func (e *InnerError) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := raw[k].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}
	e.Code = pick("code")
	e.RequestID = pick("request-id", "request_id", "requestId")
	e.ClientRequestID = pick("client-request-id", "client_request_id", "clientRequestId")
	e.Date = pick("date")
	return nil
}

// parseErrorMessage decodes a Graph error body. It returns nil when the body
// is empty or has no error object.
func parseErrorMessage(body []byte) *ErrorMessage {
	if len(body) == 0 {
		return nil
	}
	var msg ErrorMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.Error == nil {
		return nil
	}
	return &msg
}

// GraphError is returned for every non-2xx Graph response.
type GraphError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Message    *ErrorMessage
	Body       []byte
}

func newGraphError(resp *Response) *GraphError {
	e := &GraphError{
		Kind:       KindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Message:    parseErrorMessage(resp.Body),
	}
	if resp.URL != nil {
		e.URL = resp.URL.String()
	}
	return e
}

func (e *GraphError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph: %s (%d)", e.Kind, e.StatusCode)
	if code := e.Code(); code != "" {
		fmt.Fprintf(&b, " %s", code)
	}
	if e.Message != nil && e.Message.Error != nil && e.Message.Error.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message.Error.Message)
	}
	if id := e.RequestID(); id != "" {
		fmt.Fprintf(&b, " [request-id %s]", id)
	}
	return b.String()
}

// Is reports whether target is the sentinel for this error's kind.
func (e *GraphError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Code returns the Graph error code, if the body carried one.
func (e *GraphError) Code() string {
	if e.Message == nil || e.Message.Error == nil {
		return ""
	}
	return e.Message.Error.Code
}

// RequestID returns the request-id from the inner error.
func (e *GraphError) RequestID() string {
	if inner := e.inner(); inner != nil {
		return inner.RequestID
	}
	return ""
}

// Date returns the date stamp from the inner error.
func (e *GraphError) Date() string {
	if inner := e.inner(); inner != nil {
		return inner.Date
	}
	return ""
}

func (e *GraphError) inner() *InnerError {
	if e.Message == nil || e.Message.Error == nil {
		return nil
	}
	return e.Message.Error.InnerError
}

// PreFlightError is the deferred error of a handler chain, surfaced on
// Build or Send together with what had been composed so far.
type PreFlightError struct {
	URL    string
	Header http.Header
	Err    error
}

func (e *PreFlightError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("graph: preflight: %v", e.Err)
	}
	return fmt.Sprintf("graph: preflight %s: %v", e.URL, e.Err)
}

func (e *PreFlightError) Unwrap() error { return e.Err }

// Is matches ErrPreFlight.
func (e *PreFlightError) Is(target error) bool { return target == ErrPreFlight }

// UploadFailedError is returned when the server rejects an upload chunk.
// The chunk stays at the head of the session queue so it can be retried.
type UploadFailedError struct {
	*GraphError
	Range ByteRange
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("uploading %s: %v", e.Range.ContentRange(), e.GraphError)
}

func (e *UploadFailedError) Unwrap() error { return e.GraphError }

// Is matches ErrUploadFailed in addition to the status sentinels.
func (e *UploadFailedError) Is(target error) bool {
	return target == ErrUploadFailed
}

// DeserializationError is reported when a response body does not have the
// expected shape. The envelope is kept so nothing is lost.
type DeserializationError struct {
	Response *Response
	Err      error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrDeserialization, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// Is matches ErrDeserialization.
func (e *DeserializationError) Is(target error) bool { return target == ErrDeserialization }

// KindOf classifies any error returned by this package.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var graphErr *GraphError
	if errors.As(err, &graphErr) {
		return graphErr.Kind
	}
	switch {
	case errors.Is(err, ErrPreFlight):
		return KindPreFlight
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrDeserialization):
		return KindDeserialization
	}
	return KindUnknown
}
