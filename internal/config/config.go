package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Catalog  CatalogConfig
	Metadata MetadataConfig
	Storage  StorageConfig
	Playlist PlaylistConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type CatalogConfig struct {
	BaseURL    string
	OAuthToken string
}

type MetadataConfig struct {
	BaseURL string
	APIKey  string
}

type StorageConfig struct {
	DataDir string
	// FeatureTTL is how long cached track features stay fresh, as a
	// time.Duration string.
	FeatureTTL string
}

type PlaylistConfig struct {
	DefaultLength int
	// WorkerPoll is the enrichment worker's queue poll interval, as a
	// time.Duration string.
	WorkerPoll string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Catalog: CatalogConfig{
			BaseURL: "http://localhost:8787",
		},
		Metadata: MetadataConfig{
			BaseURL: "http://localhost:8788",
		},
		Storage: StorageConfig{
			DataDir:    dataDir,
			FeatureTTL: "720h",
		},
		Playlist: PlaylistConfig{
			DefaultLength: 25,
			WorkerPoll:    "500ms",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.mixtape.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/mixtape/config.json
// and secrets come from a secrets file or environment variables.
//
// Environment variables (MIXTAPE_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets absent from env fall back to the platform secret store.
	if cfg.Catalog.OAuthToken == "" {
		if tok, err := kc.Get("mixtape", "catalog_token"); err == nil && tok != "" {
			cfg.Catalog.OAuthToken = tok
		}
	}
	if cfg.Server.Token == "" {
		if tok, err := kc.Get("mixtape", "api_token"); err == nil && tok != "" {
			cfg.Server.Token = tok
		}
	}
	if cfg.Metadata.APIKey == "" {
		if key, err := kc.Get("mixtape", "metadata_api_key"); err == nil && key != "" {
			cfg.Metadata.APIKey = key
		}
	}

	if cfg.Catalog.OAuthToken == "" {
		msg := "missing required config: catalog OAuth token. " +
			"Set it via environment variable MIXTAPE_CATALOG_TOKEN" +
			secretHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	if _, err := time.ParseDuration(cfg.Storage.FeatureTTL); err != nil {
		return Config{}, fmt.Errorf("invalid storage.feature_ttl %q: %w", cfg.Storage.FeatureTTL, err)
	}
	if _, err := time.ParseDuration(cfg.Playlist.WorkerPoll); err != nil {
		return Config{}, fmt.Errorf("invalid playlist.worker_poll %q: %w", cfg.Playlist.WorkerPoll, err)
	}

	return cfg, nil
}

// FeatureTTL returns the parsed feature cache TTL. Load validates the value,
// so a zero duration only appears on a hand-built Config.
func (c Config) FeatureTTL() time.Duration {
	d, _ := time.ParseDuration(c.Storage.FeatureTTL)
	return d
}

// WorkerPoll returns the parsed enrichment poll interval.
func (c Config) WorkerPoll() time.Duration {
	d, _ := time.ParseDuration(c.Playlist.WorkerPoll)
	return d
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
