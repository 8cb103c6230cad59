// Package vault fetches venue credentials from HashiCorp Vault. In paper
// mode the engine never needs credentials and the client stays disabled.
package vault

import (
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// VenueCredentials are the secrets the live venue client needs
type VenueCredentials struct {
	APIKey    string `json:"api_key"`
	Endpoint  string `json:"endpoint"`
	IsTestnet bool   `json:"is_testnet"`
}

// Config holds vault connection settings
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string // KV v2 mount, e.g. "secret"
	TLSEnabled bool
	CACert     string
}

// Client wraps the HashiCorp Vault client with a small read-through cache
type Client struct {
	client *api.Client
	config Config

	mu    sync.RWMutex
	cache map[string]*VenueCredentials
}

// NewClient creates a new Vault client. A disabled client can still serve
// credentials seeded through Store, which tests and paper mode rely on.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*VenueCredentials),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*VenueCredentials),
	}, nil
}

// Store caches venue credentials locally and, when vault is enabled, writes
// them to the KV store
func (c *Client) Store(venue string, creds VenueCredentials) error {
	c.mu.Lock()
	c.cache[venue] = &creds
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	data := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"endpoint":   creds.Endpoint,
			"is_testnet": creds.IsTestnet,
		},
	}
	_, err := c.client.Logical().Write(c.secretPath(venue), data)
	if err != nil {
		return fmt.Errorf("failed to store venue credentials: %w", err)
	}
	return nil
}

// Fetch returns credentials for a venue, from cache when possible
func (c *Client) Fetch(venue string) (*VenueCredentials, error) {
	c.mu.RLock()
	if creds, ok := c.cache[venue]; ok {
		c.mu.RUnlock()
		return creds, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("no credentials for venue %q and vault is disabled", venue)
	}

	secret, err := c.client.Logical().Read(c.secretPath(venue))
	if err != nil {
		return nil, fmt.Errorf("failed to read venue credentials: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credentials stored for venue %q", venue)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format for venue %q", venue)
	}

	creds := &VenueCredentials{}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["endpoint"].(string); ok {
		creds.Endpoint = v
	}
	if v, ok := data["is_testnet"].(bool); ok {
		creds.IsTestnet = v
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("credentials for venue %q have no api key", venue)
	}

	c.mu.Lock()
	c.cache[venue] = creds
	c.mu.Unlock()
	return creds, nil
}

func (c *Client) secretPath(venue string) string {
	mount := c.config.MountPath
	if mount == "" {
		mount = "secret"
	}
	return fmt.Sprintf("%s/data/trading-engine/venues/%s", mount, venue)
}
