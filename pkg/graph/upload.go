package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// UploadState is the lifecycle of an upload session.
type UploadState int

const (
	UploadCreated UploadState = iota
	UploadInProgress
	UploadCompleted
	UploadCancelled
	UploadFailed
)

func (s UploadState) String() string {
	switch s {
	case UploadCreated:
		return "created"
	case UploadInProgress:
		return "in_progress"
	case UploadCompleted:
		return "completed"
	case UploadCancelled:
		return "cancelled"
	case UploadFailed:
		return "failed"
	}
	return "unknown"
}

// ConflictBehavior tells the server what to do when the target name exists.
type ConflictBehavior string

const (
	ConflictFail    ConflictBehavior = "fail"
	ConflictReplace ConflictBehavior = "replace"
	ConflictRename  ConflictBehavior = "rename"
)

// FileSystemInfo carries client-side timestamps for the uploaded item.
type FileSystemInfo struct {
	CreatedDateTime      *time.Time `json:"createdDateTime,omitempty"`
	LastModifiedDateTime *time.Time `json:"lastModifiedDateTime,omitempty"`
}

// UploadSessionOptions is the optional body of createUploadSession.
type UploadSessionOptions struct {
	ConflictBehavior ConflictBehavior
	Name             string
	Description      string
	FileSystemInfo   *FileSystemInfo
}

type uploadItem struct {
	ConflictBehavior ConflictBehavior `json:"@microsoft.graph.conflictBehavior,omitempty"`
	Name             string           `json:"name,omitempty"`
	Description      string           `json:"description,omitempty"`
	FileSystemInfo   *FileSystemInfo  `json:"fileSystemInfo,omitempty"`
}

type uploadSessionBody struct {
	Item uploadItem `json:"item"`
}

func (o *UploadSessionOptions) body() uploadSessionBody {
	return uploadSessionBody{Item: uploadItem{
		ConflictBehavior: o.ConflictBehavior,
		Name:             o.Name,
		Description:      o.Description,
		FileSystemInfo:   o.FileSystemInfo,
	}}
}

// UploadSessionInfo is the server's description of a session, returned on
// create and by Status.
type UploadSessionInfo struct {
	UploadURL          string    `json:"uploadUrl,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	NextExpectedRanges []string  `json:"nextExpectedRanges,omitempty"`
}

// UploadProgress is called by Run after every accepted chunk.
type UploadProgress func(uploaded, total int64)

// UploadSession drives the chunk PUTs of one resumable upload. It is not
// safe for concurrent use; chunks go out one at a time in ascending order.
type UploadSession struct {
	client     *Client
	uploadURL  string
	expiration time.Time
	reader     *ByteRangeReader
	queue      []ByteRange
	state      UploadState
	logger     Logger
}

// UploadSession posts the handler (normally a createUploadSession URL) and
// returns a session over reader's chunks. When opts is nil the handler's
// own body, if any, is sent.
func (h *RequestHandler) UploadSession(ctx context.Context, reader *ByteRangeReader, opts *UploadSessionOptions) (*UploadSession, error) {
	if reader == nil {
		return nil, h.preflight(fmt.Errorf("%w: byte range reader is required", ErrInvalidArgument))
	}
	if opts != nil {
		h.JSON(opts.body())
	}
	resp, err := h.Send(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating upload session: %w", err)
	}
	var info UploadSessionInfo
	if err := resp.JSON(&info); err != nil {
		return nil, err
	}
	if info.UploadURL == "" {
		return nil, ErrMissingUploadURL
	}
	s := newUploadSession(h.client, info.UploadURL, reader)
	s.expiration = info.ExpirationDateTime
	h.client.logger.Debug("upload session created", "chunks", len(s.queue), "expires", s.expiration)
	return s, nil
}

// ResumeUploadSession continues a session from a persisted upload URL. Call
// Status and Reconcile to skip what the server already has.
func ResumeUploadSession(c *Client, uploadURL string, reader *ByteRangeReader) (*UploadSession, error) {
	if uploadURL == "" {
		return nil, ErrMissingUploadURL
	}
	if reader == nil {
		return nil, fmt.Errorf("%w: byte range reader is required", ErrInvalidArgument)
	}
	s := newUploadSession(c, uploadURL, reader)
	s.state = UploadInProgress
	return s, nil
}

func newUploadSession(c *Client, uploadURL string, reader *ByteRangeReader) *UploadSession {
	return &UploadSession{
		client:    c,
		uploadURL: uploadURL,
		reader:    reader,
		queue:     reader.Ranges(),
		state:     UploadCreated,
		logger:    c.logger,
	}
}

// UploadURL is the pre-authorized URL chunks are sent to.
func (s *UploadSession) UploadURL() string { return s.uploadURL }

// Expiration is the server-reported expiry, zero if unknown.
func (s *UploadSession) Expiration() time.Time { return s.expiration }

// State returns the current state.
func (s *UploadSession) State() UploadState { return s.state }

// HasNext reports whether a chunk is waiting to be sent.
func (s *UploadSession) HasNext() bool {
	return len(s.queue) > 0 && s.state != UploadCancelled && s.state != UploadCompleted
}

// Remaining returns the ranges still queued.
func (s *UploadSession) Remaining() []ByteRange {
	return append([]ByteRange(nil), s.queue...)
}

// Uploaded is the number of bytes the server has accepted so far.
func (s *UploadSession) Uploaded() int64 {
	var pending int64
	for _, r := range s.queue {
		pending += r.Len()
	}
	return s.reader.Len() - pending
}

// Next sends the chunk at the head of the queue. A 202 pops it and keeps
// the session in progress; a 200 or 201 pops it and completes the session,
// returning the created item. A rejected chunk stays queued and comes back
// as *UploadFailedError, so calling Next again retries it.
func (s *UploadSession) Next(ctx context.Context) (*Response, error) {
	switch {
	case s.state == UploadCancelled:
		return nil, ErrSessionCancelled
	case s.state == UploadCompleted:
		return nil, ErrSessionComplete
	case len(s.queue) == 0:
		return nil, fmt.Errorf("%w: no chunks left to upload", ErrInvalidArgument)
	}

	br := s.queue[0]
	data, err := s.reader.ReadRange(br)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.client.chunkTimeout(br.Len()))
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: upload url: %w", ErrInvalidArgument, err)
	}
	req.ContentLength = br.Len()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Range", br.ContentRange())

	s.logger.Debugf("Uploading %s", br.ContentRange())
	resp, err := s.client.doWith(s.client.uploadHTTPClient(), req)
	if err != nil {
		var graphErr *GraphError
		if errors.As(err, &graphErr) {
			s.state = UploadFailed
			return resp, &UploadFailedError{GraphError: graphErr, Range: br}
		}
		return resp, err
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		s.queue = s.queue[1:]
		s.state = UploadInProgress
	case http.StatusOK, http.StatusCreated:
		s.queue = s.queue[1:]
		if len(s.queue) > 0 {
			s.logger.Warnf("Server completed the upload with %d range(s) still queued", len(s.queue))
			s.queue = nil
		}
		s.state = UploadCompleted
	default:
		s.logger.Warnf("Unexpected upload status %d for %s", resp.StatusCode, br.ContentRange())
		s.queue = s.queue[1:]
		s.state = UploadInProgress
	}
	return resp, nil
}

// Run sends every remaining chunk in order and returns the final response.
// It stops at the first error, leaving the session resumable.
func (s *UploadSession) Run(ctx context.Context, progress UploadProgress) (*Response, error) {
	var last *Response
	for s.HasNext() {
		resp, err := s.Next(ctx)
		if err != nil {
			return resp, err
		}
		last = resp
		if progress != nil {
			progress(s.Uploaded(), s.reader.Len())
		}
	}
	if s.state == UploadCancelled {
		return last, ErrSessionCancelled
	}
	return last, nil
}

// Cancel deletes the session on the server. Calling it again, or after the
// server already forgot the session, is not an error.
func (s *UploadSession) Cancel(ctx context.Context) error {
	if s.state == UploadCancelled {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.uploadURL, nil)
	if err != nil {
		return fmt.Errorf("%w: upload url: %w", ErrInvalidArgument, err)
	}
	resp, err := s.client.do(req)
	if err != nil && (resp == nil || resp.StatusCode != http.StatusNotFound) {
		return fmt.Errorf("cancelling upload session: %w", err)
	}
	s.queue = nil
	s.state = UploadCancelled
	return nil
}

// Status asks the server which ranges it still expects.
func (s *UploadSession) Status(ctx context.Context) (*UploadSessionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.uploadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: upload url: %w", ErrInvalidArgument, err)
	}
	resp, err := s.client.do(req)
	if err != nil {
		return nil, fmt.Errorf("getting upload session status: %w", err)
	}
	var info UploadSessionInfo
	if err := resp.JSON(&info); err != nil {
		return nil, err
	}
	if !info.ExpirationDateTime.IsZero() {
		s.expiration = info.ExpirationDateTime
	}
	return &info, nil
}

// Reconcile rebuilds the queue from the earliest range the server still
// expects, dropping chunks it already acknowledged.
func (s *UploadSession) Reconcile(info *UploadSessionInfo) error {
	if info == nil || len(info.NextExpectedRanges) == 0 {
		return nil
	}
	start := int64(-1)
	for _, raw := range info.NextExpectedRanges {
		from, err := parseExpectedRangeStart(raw)
		if err != nil {
			return err
		}
		if start < 0 || from < start {
			start = from
		}
	}
	queue, err := s.reader.RangesFrom(start)
	if err != nil {
		return err
	}
	s.queue = queue
	return nil
}

// parseExpectedRangeStart reads the start of "S-E" or "S-".
func parseExpectedRangeStart(raw string) (int64, error) {
	head, _, _ := strings.Cut(raw, "-")
	start, err := strconv.ParseInt(strings.TrimSpace(head), 10, 64)
	if err != nil || start < 0 {
		return 0, fmt.Errorf("%w: malformed expected range %q", ErrDeserialization, raw)
	}
	return start, nil
}
