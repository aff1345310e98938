package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonimelisma/msgraph-client/pkg/identity"
)

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, []byte(`{"id":"1","value":[1,2]}`)))
	assert.Equal(t, "{\n  \"id\": \"1\",\n  \"value\": [\n    1,\n    2\n  ]\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, PrintJSON(&buf, []byte("plain text")))
	assert.Equal(t, "plain text", buf.String())

	buf.Reset()
	require.NoError(t, PrintJSON(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestDisplayDeviceCode(t *testing.T) {
	var buf bytes.Buffer
	DisplayDeviceCode(&buf, &identity.DeviceAuthorization{UserCode: "ABCD", VerificationURI: "https://microsoft.com/devicelogin"})
	assert.Contains(t, buf.String(), "https://microsoft.com/devicelogin")
	assert.Contains(t, buf.String(), "ABCD")

	buf.Reset()
	DisplayDeviceCode(&buf, &identity.DeviceAuthorization{Message: "Go sign in."})
	assert.Equal(t, "Go sign in.\n", buf.String())
}

func TestDisplayAccountAndToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	DisplayAccount(&buf, &identity.Account{Name: "Ada", Username: "ada@contoso.com", TenantID: "tid"})
	DisplayTokenStatus(&buf, &identity.Token{AccessToken: "at", RefreshToken: "rt", Scopes: []string{"User.Read"}, ExpiresAt: now.Add(90 * time.Second)}, now)

	out := buf.String()
	assert.Contains(t, out, "Logged in as: Ada (ada@contoso.com)")
	assert.Contains(t, out, "Tenant:     tid")
	assert.NotContains(t, out, "Object ID")
	assert.Contains(t, out, "expires in 1m30s")
	assert.Contains(t, out, "Scopes:     User.Read")
	assert.Contains(t, out, "Refresh:    available")

	buf.Reset()
	DisplayTokenStatus(&buf, &identity.Token{AccessToken: "at", ExpiresAt: now.Add(-time.Minute)}, now)
	assert.Contains(t, buf.String(), "expired 1m0s ago")
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		6553600:         "6.2 MiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatBytes(in), "formatBytes(%d)", in)
	}
}

func TestUploadSummary(t *testing.T) {
	assert.Equal(t, "Uploaded /a.bin (1.0 KiB)", UploadSummary("/a.bin", 1024, false))
	assert.Equal(t, "Resumed and uploaded /a.bin (10 B)", UploadSummary("/a.bin", 10, true))
}

func TestPagingFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	AddPagingFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--top", "5", "--all", "--next", "https://graph.microsoft.com/v1.0/users?$skiptoken=x"}))

	p, err := ParsePagingFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, Paging{Top: 5, FetchAll: true, NextLink: "https://graph.microsoft.com/v1.0/users?$skiptoken=x"}, p)

	bad := &cobra.Command{Use: "y"}
	AddPagingFlags(bad)
	require.NoError(t, bad.Flags().Parse([]string{"--top", "-1"}))
	_, err = ParsePagingFlags(bad)
	assert.Error(t, err)
}

func TestNextPageHint(t *testing.T) {
	assert.Empty(t, NextPageHint("", false))
	assert.Empty(t, NextPageHint("https://next", true))
	assert.Contains(t, NextPageHint("https://next", false), "--next 'https://next'")
}
