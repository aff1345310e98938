package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonimelisma/msgraph-client/internal/app"
	"github.com/tonimelisma/msgraph-client/internal/config"
	"github.com/tonimelisma/msgraph-client/internal/session"
	"github.com/tonimelisma/msgraph-client/pkg/graph"
	"github.com/tonimelisma/msgraph-client/pkg/identity"
)

// newTestApp returns an app with a fresh signed-in session whose Graph
// traffic goes to server.
func newTestApp(t *testing.T, server *httptest.Server, signedIn bool) *app.App {
	t.Helper()
	a := app.New(config.Default(), session.NewManagerWithConfigDir(t.TempDir()), nil)
	if server != nil {
		a.GraphBaseURL = server.URL
	}
	if signedIn {
		require.NoError(t, a.SaveUserToken(&identity.Token{
			AccessToken:  "at",
			RefreshToken: "rt",
			ExpiresAt:    time.Now().Add(time.Hour),
		}))
	}
	return a
}

// newTestCommand builds a detached command with flags from addFlags and
// captures its output.
func newTestCommand(addFlags func(*cobra.Command)) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	c := &cobra.Command{}
	if addFlags != nil {
		addFlags(c)
	}
	var out, errOut bytes.Buffer
	c.SetOut(&out)
	c.SetErr(&errOut)
	c.SetContext(context.Background())
	return c, &out, &errOut
}

func TestGetPrintsResponseAndNextHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("$top"))
		assert.Equal(t, "subject,from", r.URL.Query().Get("$select"))
		assert.Equal(t, "isRead eq false", r.URL.Query().Get("$filter"))
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"value":[{"id":"m1"},{"id":"m2"}],"@odata.nextLink":"https://graph.microsoft.com/v1.0/me/messages?$skiptoken=x"}`)
	}))
	defer server.Close()

	c, out, errOut := newTestCommand(addGetFlags)
	require.NoError(t, c.Flags().Set("top", "2"))
	require.NoError(t, c.Flags().Set("select", "subject,from"))
	require.NoError(t, c.Flags().Set("filter", "isRead eq false"))

	require.NoError(t, getLogic(newTestApp(t, server, true), c, []string{"/me/messages"}))
	assert.Contains(t, out.String(), `"id": "m1"`)
	assert.Contains(t, errOut.String(), "--next 'https://graph.microsoft.com/v1.0/me/messages?$skiptoken=x'")
}

func TestGetAllMergesPages(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$skiptoken") == "" {
			_, _ = io.WriteString(w, `{"value":[{"id":"u1"}],"@odata.nextLink":"`+server.URL+`/users?$skiptoken=p2"}`)
			return
		}
		_, _ = io.WriteString(w, `{"value":[{"id":"u2"}]}`)
	}))
	defer server.Close()

	c, out, errOut := newTestCommand(addGetFlags)
	require.NoError(t, c.Flags().Set("all", "true"))

	require.NoError(t, getLogic(newTestApp(t, server, true), c, []string{"/users"}))
	assert.JSONEq(t, `[{"id":"u1"},{"id":"u2"}]`, out.String())
	assert.Empty(t, errOut.String())
}

func TestGetValidation(t *testing.T) {
	c, _, _ := newTestCommand(addGetFlags)
	err := getLogic(newTestApp(t, nil, true), c, nil)
	assert.ErrorContains(t, err, "a path or --next is required")

	c, _, _ = newTestCommand(addGetFlags)
	err = getLogic(newTestApp(t, nil, false), c, []string{"/me"})
	assert.ErrorIs(t, err, graph.ErrReauthRequired)
	assert.ErrorContains(t, err, "auth login")
}

func TestGetSurfacesGraphErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":"Request_ResourceNotFound","message":"Resource 'x' does not exist"}}`)
	}))
	defer server.Close()

	c, _, _ := newTestCommand(addGetFlags)
	err := getLogic(newTestApp(t, server, true), c, []string{"/users/x"})
	var graphErr *graph.GraphError
	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, "Request_ResourceNotFound", graphErr.Code())
}

// uploadServer fakes createUploadSession and the upload URL.
type uploadServer struct {
	*httptest.Server
	mu          sync.Mutex
	ranges      []string
	created     int
	cancelled   bool
	failAt      int
	expected    []string
	createdBody string
}

func newUploadServer(t *testing.T, size int64) *uploadServer {
	t.Helper()
	us := &uploadServer{failAt: -1}
	us.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		us.mu.Lock()
		defer us.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost:
			assert.Equal(t, "/me/drive/root:/docs/file.bin:/createUploadSession", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			us.createdBody = string(body)
			us.created++
			exp := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
			_, _ = io.WriteString(w, `{"uploadUrl":"`+us.URL+`/upload/abc","expirationDateTime":"`+exp+`"}`)
		case r.Method == http.MethodGet:
			_, _ = io.WriteString(w, `{"nextExpectedRanges":["`+strings.Join(us.expected, `","`)+`"]}`)
		case r.Method == http.MethodDelete:
			us.cancelled = true
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPut:
			if len(us.ranges) == us.failAt {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"error":{"code":"generalException","message":"boom"}}`)
				return
			}
			cr := r.Header.Get("Content-Range")
			us.ranges = append(us.ranges, cr)
			if strings.HasSuffix(cr, "-"+strconv.FormatInt(size-1, 10)+"/"+strconv.FormatInt(size, 10)) {
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"id":"item1","name":"file.bin"}`)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"nextExpectedRanges":[]}`)
		}
	}))
	t.Cleanup(us.Close)
	return us
}

const testChunk = graph.UploadAlignment

func writeTestFile(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{'x'}, int(size)), 0o600))
	return path
}

func newUploadCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	c, out, _ := newTestCommand(addUploadFlags)
	require.NoError(t, c.Flags().Set("chunk-size", strconv.FormatInt(testChunk, 10)))
	return c, out
}

func TestUploadCompletesAndClearsState(t *testing.T) {
	size := int64(2*testChunk + 10)
	server := newUploadServer(t, size)
	local := writeTestFile(t, size)
	a := newTestApp(t, server.Server, true)
	c, out := newUploadCommand(t)

	require.NoError(t, uploadLogic(a, c, []string{local, "/docs/file.bin"}))
	assert.Equal(t, 1, server.created)
	assert.Contains(t, server.createdBody, `"@microsoft.graph.conflictBehavior":"replace"`)
	assert.Equal(t, []string{
		"bytes 0-327679/655370",
		"bytes 327680-655359/655370",
		"bytes 655360-655369/655370",
	}, server.ranges)
	assert.Contains(t, out.String(), "Item ID: item1")

	state, err := a.Sessions.Load(local, "/docs/file.bin")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestUploadFailureKeepsStateForResume(t *testing.T) {
	size := int64(2*testChunk + 10)
	server := newUploadServer(t, size)
	server.failAt = 1
	local := writeTestFile(t, size)
	a := newTestApp(t, server.Server, true)
	c, _ := newUploadCommand(t)

	err := uploadLogic(a, c, []string{local, "/docs/file.bin"})
	require.Error(t, err)
	var failed *graph.UploadFailedError
	assert.ErrorAs(t, err, &failed)

	state, err := a.Sessions.Load(local, "/docs/file.bin")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, server.URL+"/upload/abc", state.UploadURL)
	assert.Equal(t, int64(testChunk), state.CompletedBytes)
	assert.Equal(t, int64(testChunk), state.ChunkSize)
}

func TestUploadResumesFromExpectedRange(t *testing.T) {
	size := int64(2*testChunk + 10)
	server := newUploadServer(t, size)
	server.expected = []string{"327680-"}
	local := writeTestFile(t, size)
	a := newTestApp(t, server.Server, true)
	require.NoError(t, a.Sessions.Save(&session.State{
		UploadURL:          server.URL + "/upload/abc",
		ExpirationDateTime: time.Now().Add(time.Hour),
		LocalPath:          local,
		RemotePath:         "/docs/file.bin",
		ChunkSize:          testChunk,
		CompletedBytes:     testChunk,
	}))
	c, out := newUploadCommand(t)

	require.NoError(t, uploadLogic(a, c, []string{local, "/docs/file.bin"}))
	assert.Zero(t, server.created, "no new session")
	assert.Equal(t, []string{"bytes 327680-655359/655370", "bytes 655360-655369/655370"}, server.ranges)
	assert.Contains(t, out.String(), "Resumed and uploaded /docs/file.bin")
}

func TestUploadCancelDeletesSession(t *testing.T) {
	size := int64(testChunk)
	server := newUploadServer(t, size)
	local := writeTestFile(t, size)
	a := newTestApp(t, server.Server, true)
	require.NoError(t, a.Sessions.Save(&session.State{
		UploadURL:  server.URL + "/upload/abc",
		LocalPath:  local,
		RemotePath: "/docs/file.bin",
	}))
	c, out := newUploadCommand(t)
	require.NoError(t, c.Flags().Set("cancel", "true"))

	require.NoError(t, uploadLogic(a, c, []string{local, "/docs/file.bin"}))
	assert.True(t, server.cancelled)
	assert.Contains(t, out.String(), "Upload session cancelled.")
	state, err := a.Sessions.Load(local, "/docs/file.bin")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestUploadValidation(t *testing.T) {
	a := newTestApp(t, nil, true)
	local := writeTestFile(t, 10)

	tests := []struct {
		name     string
		args     []string
		conflict  string
		chunkSize string
		wantErr   string
	}{
		{"bad conflict", []string{local, "/docs/file.bin"}, "overwrite", "", "--conflict must be fail, replace or rename"},
		{"missing file", []string{filepath.Join(t.TempDir(), "nope"), "/docs/file.bin"}, "", "", "is not readable"},
		{"root remote", []string{local, "/"}, "", "", "remote path must name a file"},
		{"unaligned chunk", []string{local, "/docs/file.bin"}, "", "1000", "--chunk-size must be a multiple of 327680 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newUploadCommand(t)
			if tt.conflict != "" {
				require.NoError(t, c.Flags().Set("conflict", tt.conflict))
			}
			if tt.chunkSize != "" {
				require.NoError(t, c.Flags().Set("chunk-size", tt.chunkSize))
			}
			assert.ErrorContains(t, uploadLogic(a, c, tt.args), tt.wantErr)
		})
	}
}

func TestUploadSessionPath(t *testing.T) {
	assert.Equal(t, "/me/drive/root:/docs/a b.txt:/createUploadSession", uploadSessionPath("/docs/a b.txt/"))
}

func TestAuthStatus(t *testing.T) {
	c, out, _ := newTestCommand(nil)
	require.NoError(t, authStatusLogic(newTestApp(t, nil, false), c))
	assert.Contains(t, out.String(), "You are not logged in.")

	a := newTestApp(t, nil, false)
	require.NoError(t, a.Sessions.SaveAuthState(&session.AuthState{
		DeviceCode:      "dc",
		UserCode:        "ABCD-EFGH",
		VerificationURI: "https://microsoft.com/devicelogin",
	}))
	c, out, _ = newTestCommand(nil)
	require.NoError(t, authStatusLogic(a, c))
	assert.Contains(t, out.String(), "Go to https://microsoft.com/devicelogin and enter code ABCD-EFGH")

	c, out, _ = newTestCommand(nil)
	require.NoError(t, authStatusLogic(newTestApp(t, nil, true), c))
	assert.NotContains(t, out.String(), "not logged in")
}

func TestAuthLoginAlreadySignedIn(t *testing.T) {
	c, out, _ := newTestCommand(addLoginFlags)
	require.NoError(t, authLoginLogic(newTestApp(t, nil, true), c))
	assert.Contains(t, out.String(), "You are already logged in.")
}

func TestAuthLoginFlagValidation(t *testing.T) {
	c, _, _ := newTestCommand(addLoginFlags)
	require.NoError(t, c.Flags().Set("interactive", "true"))
	require.NoError(t, c.Flags().Set("client-secret", "true"))
	assert.ErrorContains(t, authLoginLogic(newTestApp(t, nil, false), c), "mutually exclusive")

	t.Setenv(app.ClientSecretEnv, "")
	c, _, _ = newTestCommand(addLoginFlags)
	require.NoError(t, c.Flags().Set("client-secret", "true"))
	assert.ErrorContains(t, authLoginLogic(newTestApp(t, nil, false), c), app.ClientSecretEnv+" is not set")
}

func TestGenerateCommand(t *testing.T) {
	out := t.TempDir()
	c, stdout, _ := newTestCommand(addGenerateFlags)
	require.NoError(t, c.Flags().Set("spec", filepath.Join("..", "internal", "codegen", "testdata", "graph-mini.yaml")))
	require.NoError(t, c.Flags().Set("out", out))
	require.NoError(t, c.Flags().Set("package", "graphclient"))

	require.NoError(t, generateLogic(c, nil))
	assert.Contains(t, stdout.String(), "Generated 15 operations, 13 emitted into 5 clients")

	src, err := os.ReadFile(filepath.Join(out, "client_gen.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "package graphclient")
}

func TestGenerateRejectsBadPackage(t *testing.T) {
	c, _, _ := newTestCommand(addGenerateFlags)
	require.NoError(t, c.Flags().Set("spec", "unused.yaml"))
	require.NoError(t, c.Flags().Set("package", "not-a-package"))
	assert.ErrorContains(t, generateLogic(c, nil), "not a valid package name")
}
