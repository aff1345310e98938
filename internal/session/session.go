// Package session keeps the CLI's state files: resumable upload sessions,
// a pending device-code sign-in and the persisted token cache. Every file
// is guarded by a sibling .lock file so concurrent CLI invocations cannot
// corrupt each other's writes.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds a state file's lock.
var ErrLocked = errors.New("state file is locked, another instance may be running")

// State is a resumable upload session.
type State struct {
	UploadURL          string    `json:"uploadUrl"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	LocalPath          string    `json:"localPath"`
	RemotePath         string    `json:"remotePath"`
	ChunkSize          int64     `json:"chunkSize"`
	CompletedBytes     int64     `json:"completedBytes"`
}

// Manager reads and writes state files under one directory.
type Manager struct {
	configDir string
	now       func() time.Time
}

// NewManager returns a manager rooted in the user's config directory.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("could not get user config directory: %w", err)
	}
	return NewManagerWithConfigDir(filepath.Join(configDir, "msgraph-client")), nil
}

// NewManagerWithConfigDir returns a manager rooted in configDir.
func NewManagerWithConfigDir(configDir string) *Manager {
	return &Manager{configDir: configDir, now: time.Now}
}

func (m *Manager) getSessionDir() string {
	return filepath.Join(m.configDir, "sessions")
}

// GetSessionFilePath returns the state file of an upload. The name is a
// hash of both paths so the same transfer always maps to the same file.
func (m *Manager) GetSessionFilePath(localPath, remotePath string) string {
	sum := sha256.Sum256([]byte(localPath + ":" + remotePath))
	return filepath.Join(m.getSessionDir(), hex.EncodeToString(sum[:])+".json")
}

// withLock runs fn while holding path's lock file.
func (m *Manager) withLock(path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("could not create session directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("could not acquire file lock: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	defer lock.Unlock()
	return fn()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal state: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// readJSON decodes path into v. A missing file reports found == false.
func readJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("could not read state file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("could not unmarshal state: %w", err)
	}
	return true, nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not delete state file: %w", err)
	}
	return nil
}

// Save persists an upload session.
func (m *Manager) Save(state *State) error {
	path := m.GetSessionFilePath(state.LocalPath, state.RemotePath)
	return m.withLock(path, func() error { return writeJSON(path, state) })
}

// Load returns the saved session of an upload, or nil when there is none
// or it has expired. Expired sessions are removed.
func (m *Manager) Load(localPath, remotePath string) (*State, error) {
	path := m.GetSessionFilePath(localPath, remotePath)
	var state State
	var found bool
	err := m.withLock(path, func() error {
		var err error
		found, err = readJSON(path, &state)
		if err != nil || !found {
			return err
		}
		if !state.ExpirationDateTime.IsZero() && m.now().After(state.ExpirationDateTime) {
			found = false
			return removeFile(path)
		}
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// Delete removes an upload's session file.
func (m *Manager) Delete(localPath, remotePath string) error {
	path := m.GetSessionFilePath(localPath, remotePath)
	return m.withLock(path, func() error { return removeFile(path) })
}
