package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadRecorder struct {
	mu      sync.Mutex
	ranges  []string
	auth    []string
	lengths []int64
	types   []string
	created map[string]any
	deletes int
}

// newUploadServer serves createUploadSession and the upload URL. statuses
// are the replies to successive chunk PUTs.
func newUploadServer(t *testing.T, statuses ...int) (*httptest.Server, *uploadRecorder) {
	t.Helper()
	rec := &uploadRecorder{}
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		switch {
		case r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			if len(body) > 0 {
				_ = json.Unmarshal(body, &rec.created)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"uploadUrl":"` + server.URL + `/upload/abc","expirationDateTime":"2030-01-01T00:00:00Z"}`))
		case r.Method == http.MethodPut:
			n, _ := io.Copy(io.Discard, r.Body)
			rec.ranges = append(rec.ranges, r.Header.Get("Content-Range"))
			rec.auth = append(rec.auth, r.Header.Get("Authorization"))
			rec.lengths = append(rec.lengths, n)
			rec.types = append(rec.types, r.Header.Get("Content-Type"))
			status := http.StatusAccepted
			if i := len(rec.ranges) - 1; i < len(statuses) {
				status = statuses[i]
			}
			w.WriteHeader(status)
			if status >= 400 {
				w.Write([]byte(`{"error":{"code":"generalException","message":"try again"}}`))
			} else if status != http.StatusAccepted {
				w.Write([]byte(`{"id":"item1","name":"big.bin"}`))
			} else {
				w.Write([]byte(`{"nextExpectedRanges":["0-"]}`))
			}
		case r.Method == http.MethodDelete:
			rec.deletes++
			if rec.deletes > 1 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"expirationDateTime":"2030-01-01T00:00:00Z","nextExpectedRanges":["5-9","12-"]}`))
		}
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func newReader(t *testing.T, size, chunk int64) *ByteRangeReader {
	t.Helper()
	r, err := NewByteRangeReader(bytes.NewReader(make([]byte, size)), size, chunk)
	require.NoError(t, err)
	return r
}

func TestUploadSessionTenMiB(t *testing.T) {
	server, rec := newUploadServer(t, http.StatusAccepted, http.StatusAccepted, http.StatusCreated)
	c := newTestClient(t, server)

	reader := newReader(t, 10<<20, 4<<20)
	session, err := c.Request(http.MethodPost, "me/drive/root:/big.bin:/createUploadSession").
		UploadSession(context.Background(), reader, &UploadSessionOptions{ConflictBehavior: ConflictRename})
	require.NoError(t, err)
	assert.Equal(t, UploadCreated, session.State())
	assert.Equal(t, server.URL+"/upload/abc", session.UploadURL())
	assert.Equal(t, 2030, session.Expiration().Year())

	item, ok := rec.created["item"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rename", item["@microsoft.graph.conflictBehavior"])

	var last *Response
	for session.HasNext() {
		before := len(session.Remaining())
		resp, err := session.Next(context.Background())
		require.NoError(t, err)
		last = resp
		if session.State() == UploadInProgress {
			assert.Equal(t, before-1, len(session.Remaining()))
		}
	}

	assert.Equal(t, UploadCompleted, session.State())
	assert.Empty(t, session.Remaining())
	assert.False(t, session.HasNext())
	assert.Equal(t, http.StatusCreated, last.StatusCode)
	assert.Equal(t, []string{
		"bytes 0-4194303/10485760",
		"bytes 4194304-8388607/10485760",
		"bytes 8388608-10485759/10485760",
	}, rec.ranges)
	assert.Equal(t, []int64{4 << 20, 4 << 20, 2 << 20}, rec.lengths)
	for i := range rec.auth {
		assert.Empty(t, rec.auth[i], "chunk PUTs are not authorized")
		assert.Equal(t, "application/json", rec.types[i])
	}

	_, err = session.Next(context.Background())
	assert.ErrorIs(t, err, ErrSessionComplete)
}

func TestUploadSessionRetryKeepsChunk(t *testing.T) {
	server, rec := newUploadServer(t, http.StatusAccepted, http.StatusInternalServerError, http.StatusCreated)
	c := newTestClient(t, server)

	session, err := ResumeUploadSession(c, server.URL+"/upload/abc", newReader(t, 10, 5))
	require.NoError(t, err)

	_, err = session.Next(context.Background())
	require.NoError(t, err)

	resp, err := session.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUploadFailed)
	var failed *UploadFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, http.StatusInternalServerError, failed.StatusCode)
	assert.Equal(t, "generalException", failed.Code())
	assert.Equal(t, "bytes 5-9/10", failed.Range.ContentRange())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, UploadFailed, session.State())
	assert.Len(t, session.Remaining(), 1)
	assert.True(t, session.HasNext())

	_, err = session.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UploadCompleted, session.State())
	assert.Equal(t, []string{"bytes 0-4/10", "bytes 5-9/10", "bytes 5-9/10"}, rec.ranges)
}

func TestUploadSessionCancel(t *testing.T) {
	server, rec := newUploadServer(t)
	c := newTestClient(t, server)

	session, err := ResumeUploadSession(c, server.URL+"/upload/abc", newReader(t, 10, 5))
	require.NoError(t, err)

	require.NoError(t, session.Cancel(context.Background()))
	require.NoError(t, session.Cancel(context.Background()))
	assert.Equal(t, UploadCancelled, session.State())
	assert.False(t, session.HasNext())
	assert.Equal(t, 1, rec.deletes)

	_, err = session.Next(context.Background())
	assert.ErrorIs(t, err, ErrSessionCancelled)

	// A session the server already dropped cancels cleanly too.
	other, err := ResumeUploadSession(c, server.URL+"/upload/abc", newReader(t, 10, 5))
	require.NoError(t, err)
	require.NoError(t, other.Cancel(context.Background()))
	assert.Equal(t, 2, rec.deletes)
}

func TestUploadSessionStatusAndReconcile(t *testing.T) {
	server, _ := newUploadServer(t)
	c := newTestClient(t, server)

	session, err := ResumeUploadSession(c, server.URL+"/upload/abc", newReader(t, 20, 5))
	require.NoError(t, err)
	require.Len(t, session.Remaining(), 4)

	info, err := session.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"5-9", "12-"}, info.NextExpectedRanges)

	require.NoError(t, session.Reconcile(info))
	remaining := session.Remaining()
	require.Len(t, remaining, 3)
	assert.Equal(t, int64(5), remaining[0].Start)
	assert.Equal(t, int64(5), session.Uploaded())

	assert.Error(t, session.Reconcile(&UploadSessionInfo{NextExpectedRanges: []string{"abc-"}}))
}

func TestUploadSessionRun(t *testing.T) {
	server, rec := newUploadServer(t, http.StatusAccepted, http.StatusAccepted, http.StatusOK)
	c := newTestClient(t, server)

	session, err := ResumeUploadSession(c, server.URL+"/upload/abc", newReader(t, 15, 5))
	require.NoError(t, err)

	var progress [][2]int64
	resp, err := session.Run(context.Background(), func(done, total int64) {
		progress = append(progress, [2]int64{done, total})
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, [][2]int64{{5, 15}, {10, 15}, {15, 15}}, progress)
	assert.Len(t, rec.ranges, 3)
}

func TestUploadChunkOutlivesRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"item1"}`))
	}))
	defer server.Close()
	c := newTestClient(t, server, WithHTTPConfig(HTTPConfig{Timeout: 50 * time.Millisecond, MaxRedirects: 1}))

	_, err := c.Request(http.MethodGet, "me").Send(context.Background())
	require.ErrorIs(t, err, ErrTransport, "ordinary requests keep the client timeout")

	session, err := ResumeUploadSession(c, server.URL+"/upload/abc", newReader(t, 10, 10))
	require.NoError(t, err)
	resp, err := session.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, UploadCompleted, session.State())
}

func TestChunkTimeoutScalesWithSize(t *testing.T) {
	c, err := NewClient(StaticToken("t"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.chunkTimeout(UploadAlignment))
	assert.Equal(t, 200*time.Second, c.chunkTimeout(DefaultChunkSize))
	assert.Equal(t, 1920*time.Second, c.chunkTimeout(60<<20))
}

func TestUploadSessionEarlyCompletionClearsQueue(t *testing.T) {
	server, _ := newUploadServer(t, http.StatusCreated)
	c := newTestClient(t, server)

	session, err := ResumeUploadSession(c, server.URL+"/upload/abc", newReader(t, 15, 5))
	require.NoError(t, err)

	_, err = session.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UploadCompleted, session.State())
	assert.Empty(t, session.Remaining())
	assert.False(t, session.HasNext())
}

func TestUploadSessionMissingUploadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expirationDateTime":"2030-01-01T00:00:00Z"}`))
	}))
	defer server.Close()
	c := newTestClient(t, server)

	_, err := c.Request(http.MethodPost, "me/drive/root:/a:/createUploadSession").
		UploadSession(context.Background(), newReader(t, 10, 5), nil)
	assert.ErrorIs(t, err, ErrMissingUploadURL)

	_, err = ResumeUploadSession(c, "", newReader(t, 10, 5))
	assert.ErrorIs(t, err, ErrMissingUploadURL)
}
