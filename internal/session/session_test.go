package session

import (
	"os"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonimelisma/msgraph-client/pkg/identity"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManagerWithConfigDir(t.TempDir())
	m.now = func() time.Time { return testNow }
	return m
}

func TestUploadStateRoundTrip(t *testing.T) {
	m := newTestManager(t)
	state := &State{
		UploadURL:          "https://upload.example/session",
		ExpirationDateTime: testNow.Add(time.Hour),
		LocalPath:          "/tmp/a.bin",
		RemotePath:         "/docs/a.bin",
		ChunkSize:          327680,
		CompletedBytes:     655360,
	}
	require.NoError(t, m.Save(state))

	info, err := os.Stat(m.GetSessionFilePath(state.LocalPath, state.RemotePath))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := m.Load(state.LocalPath, state.RemotePath)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.UploadURL, loaded.UploadURL)
	assert.Equal(t, state.CompletedBytes, loaded.CompletedBytes)
	assert.True(t, state.ExpirationDateTime.Equal(loaded.ExpirationDateTime))

	require.NoError(t, m.Delete(state.LocalPath, state.RemotePath))
	loaded, err = m.Load(state.LocalPath, state.RemotePath)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	assert.NoError(t, m.Delete(state.LocalPath, state.RemotePath), "deleting twice is fine")
}

func TestExpiredUploadStateRemoved(t *testing.T) {
	m := newTestManager(t)
	state := &State{UploadURL: "u", ExpirationDateTime: testNow.Add(-time.Minute), LocalPath: "l", RemotePath: "r"}
	require.NoError(t, m.Save(state))

	loaded, err := m.Load("l", "r")
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.NoFileExists(t, m.GetSessionFilePath("l", "r"))
}

func TestSessionFilePathIsStable(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, m.GetSessionFilePath("a", "b"), m.GetSessionFilePath("a", "b"))
	assert.NotEqual(t, m.GetSessionFilePath("a", "b"), m.GetSessionFilePath("b", "a"))
}

func TestLockedStateFile(t *testing.T) {
	m := newTestManager(t)
	path := m.GetSessionFilePath("l", "r")
	require.NoError(t, os.MkdirAll(m.getSessionDir(), 0o700))

	other := flock.New(path + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	err = m.Save(&State{LocalPath: "l", RemotePath: "r"})
	assert.ErrorIs(t, err, ErrLocked)
}

func TestAuthStateRoundTrip(t *testing.T) {
	m := newTestManager(t)

	none, err := m.LoadAuthState()
	require.NoError(t, err)
	assert.Nil(t, none)

	auth := &identity.DeviceAuthorization{DeviceCode: "dc", UserCode: "ABCD-EFGH", VerificationURI: "https://microsoft.com/devicelogin", ExpiresIn: 900, Interval: 5}
	state := NewAuthState(auth, testNow)
	assert.Equal(t, testNow.Add(15*time.Minute), state.ExpiresAt)
	require.NoError(t, m.SaveAuthState(state))

	loaded, err := m.LoadAuthState()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "ABCD-EFGH", loaded.UserCode)
	assert.False(t, loaded.Expired(testNow))
	assert.True(t, loaded.Expired(testNow.Add(15*time.Minute)))

	again := loaded.Authorization(testNow.Add(10 * time.Minute))
	assert.Equal(t, "dc", again.DeviceCode)
	assert.Equal(t, 300, again.ExpiresIn)
	assert.Equal(t, 5*time.Second, again.PollInterval())

	require.NoError(t, m.DeleteAuthState())
	require.NoError(t, m.DeleteAuthState())
	loaded, err = m.LoadAuthState()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestPersistentCache(t *testing.T) {
	m := newTestManager(t)

	entries, err := m.LoadTokens()
	require.NoError(t, err)
	assert.Empty(t, entries)

	cache := identity.NewTokenCache()
	var saveErrs []error
	require.NoError(t, m.PersistentCache(cache, func(err error) { saveErrs = append(saveErrs, err) }))
	cache.Store("app", &identity.Token{AccessToken: "at", RefreshToken: "rt", ExpiresAt: testNow.Add(time.Hour)})
	assert.Empty(t, saveErrs)

	restored := identity.NewTokenCache()
	require.NoError(t, m.PersistentCache(restored, nil))
	tok, ok := restored.Get("app")
	require.True(t, ok)
	assert.Equal(t, "rt", tok.RefreshToken)

	require.NoError(t, m.DeleteTokens())
	entries, err = m.LoadTokens()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
