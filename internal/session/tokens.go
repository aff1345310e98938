package session

import (
	"path/filepath"

	"github.com/tonimelisma/msgraph-client/pkg/identity"
)

const tokenCacheFile = "tokens.json"

func (m *Manager) getTokenCachePath() string {
	return filepath.Join(m.configDir, tokenCacheFile)
}

// SaveTokens writes the token cache entries.
func (m *Manager) SaveTokens(entries map[string]identity.Token) error {
	path := m.getTokenCachePath()
	return m.withLock(path, func() error { return writeJSON(path, entries) })
}

// LoadTokens reads the persisted token cache entries; none is an empty map.
func (m *Manager) LoadTokens() (map[string]identity.Token, error) {
	path := m.getTokenCachePath()
	entries := make(map[string]identity.Token)
	err := m.withLock(path, func() error {
		_, err := readJSON(path, &entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteTokens removes the persisted token cache.
func (m *Manager) DeleteTokens() error {
	path := m.getTokenCachePath()
	return m.withLock(path, func() error { return removeFile(path) })
}

// PersistentCache restores cache from disk and writes it back after every
// store. Write failures go to onError.
func (m *Manager) PersistentCache(cache *identity.TokenCache, onError func(error)) error {
	entries, err := m.LoadTokens()
	if err != nil {
		return err
	}
	cache.Restore(entries)
	cache.OnStore(func(string, identity.Token) {
		if err := m.SaveTokens(cache.Snapshot()); err != nil && onError != nil {
			onError(err)
		}
	})
	return nil
}
