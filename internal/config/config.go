// Package config manages the persisted settings of the msgraph-client CLI:
// the app registration to sign in with, the cloud and tenant, the Graph API
// version and transfer tuning. Settings live in a JSON file in the user's
// home directory; MSGRAPH_CLIENT_CONFIG_PATH overrides its location.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tonimelisma/msgraph-client/pkg/graph"
	"github.com/tonimelisma/msgraph-client/pkg/identity"
)

const (
	configDir  = ".msgraph-client"
	configFile = "config.json"

	// PathEnv overrides the configuration file location.
	PathEnv = "MSGRAPH_CLIENT_CONFIG_PATH"

	// DefaultClientID is the public client registration used when none is
	// configured.
	DefaultClientID = "71ae7ad2-0207-4618-90d3-d21db38f9f7a"
	// DefaultRedirectURI is the loopback address interactive sign-in
	// listens on.
	DefaultRedirectURI = "http://localhost:8400/callback"
)

// DefaultScopes are requested for delegated sign-in.
var DefaultScopes = []string{"offline_access", "User.Read", "Files.ReadWrite.All", "Mail.ReadWrite"}

// Configuration holds all persisted settings. Zero values are replaced by
// defaults on load, so older files keep working.
type Configuration struct {
	ClientID          string   `json:"client_id"`
	Tenant            string   `json:"tenant"`
	Cloud             string   `json:"cloud"`
	APIVersion        string   `json:"api_version"`
	Scopes            []string `json:"scopes"`
	RedirectURI       string   `json:"redirect_uri"`
	ChunkSize         int64    `json:"chunk_size"`
	RequestsPerSecond float64  `json:"requests_per_second"`
	Debug             bool     `json:"debug"`

	mu sync.RWMutex
}

// Default returns a configuration with every default applied.
func Default() *Configuration {
	c := &Configuration{}
	c.applyDefaults()
	return c
}

func (c *Configuration) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.Tenant == "" {
		c.Tenant = identity.TenantCommon
	}
	if c.Cloud == "" {
		c.Cloud = identity.AzurePublic.String()
	}
	if c.APIVersion == "" {
		c.APIVersion = string(graph.V1)
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = graph.DefaultChunkSize
	}
}

// Path returns the configuration file location.
func Path() (string, error) {
	if p := os.Getenv(PathEnv); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, configDir, configFile), nil
}

// Dir returns the directory holding the configuration file; session state
// is kept next to it.
func Dir() (string, error) {
	p, err := Path()
	if err != nil {
		return "", err
	}
	return filepath.Dir(p), nil
}

// Save persists the configuration to disk with owner-only permissions.
func (c *Configuration) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling config to JSON: %w", err)
	}
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing configuration file: %w", err)
	}
	return nil
}

// Load reads the configuration file. A missing file is reported as an
// error satisfying errors.Is(err, fs.ErrNotExist).
func Load() (*Configuration, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &Configuration{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("unmarshalling json: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

// LoadOrCreate loads the configuration, falling back to defaults when no
// file exists yet.
func LoadOrCreate() (*Configuration, error) {
	c, err := Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return c, nil
}

// Authority resolves the configured cloud and tenant.
func (c *Configuration) Authority() (identity.Authority, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cloud, err := identity.ParseCloudInstance(c.Cloud)
	if err != nil {
		return identity.Authority{}, err
	}
	return identity.Authority{Cloud: cloud, Tenant: c.Tenant}, nil
}

// Version returns the Graph API version to call.
func (c *Configuration) Version() (graph.APIVersion, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch v := graph.APIVersion(c.APIVersion); v {
	case graph.V1, graph.Beta:
		return v, nil
	}
	return "", fmt.Errorf("unknown api version %q", c.APIVersion)
}
