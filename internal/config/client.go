package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Transports understood by the client.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// Client is the editing client's YAML configuration.
type Client struct {
	Endpoint       string        `yaml:"endpoint"`
	Transport      string        `yaml:"transport"`
	CAPath         string        `yaml:"ca_path,omitempty"`
	Insecure       bool          `yaml:"insecure,omitempty"`
	Plaintext      bool          `yaml:"plaintext,omitempty"`
	Debounce       time.Duration `yaml:"debounce"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	CachePath      string        `yaml:"cache_path"`
	KeyringPath    string        `yaml:"keyring_path"`
	TokenPath      string        `yaml:"token_path"`
	WorkspaceID    string        `yaml:"workspace_id,omitempty"`
}

// Dir returns $XDG_CONFIG_HOME/chartkeeper or ~/.config/chartkeeper.
func Dir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "chartkeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "chartkeeper")
}

// DefaultClient returns the defaults used for missing keys.
func DefaultClient() Client {
	dir := Dir()
	return Client{
		Endpoint:       "localhost:8443",
		Transport:      TransportGRPC,
		Debounce:       750 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
		ProbeInterval:  15 * time.Second,
		CachePath:      filepath.Join(dir, "cache.db"),
		KeyringPath:    filepath.Join(dir, "keyring.yaml"),
		TokenPath:      filepath.Join(dir, "token"),
	}
}

// LoadClient reads path over the defaults. A missing file yields the defaults.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values the client cannot run without.
func (c Client) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.Transport != TransportGRPC && c.Transport != TransportHTTP {
		return fmt.Errorf("transport must be %q or %q, got %q", TransportGRPC, TransportHTTP, c.Transport)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Debounce)
	}
	return nil
}

// Save writes c to path with 0600 permissions.
func (c Client) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
