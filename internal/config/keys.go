package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MIXTAPE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "MIXTAPE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "catalog.base_url", typ: kString, env: "MIXTAPE_CATALOG_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Catalog.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.BaseURL },
	},
	{
		key: "catalog.oauth_token", typ: kString, env: "MIXTAPE_CATALOG_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Catalog.OAuthToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.OAuthToken },
	},
	{
		key: "metadata.base_url", typ: kString, env: "MIXTAPE_METADATA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Metadata.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Metadata.BaseURL },
	},
	{
		key: "metadata.api_key", typ: kString, env: "MIXTAPE_METADATA_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Metadata.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Metadata.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MIXTAPE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.feature_ttl", typ: kString, env: "MIXTAPE_FEATURE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Storage.FeatureTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.FeatureTTL },
	},
	{
		key: "playlist.default_length", typ: kInt, env: "MIXTAPE_PLAYLIST_LENGTH",
		apply:   func(cfg *Config, v any) { cfg.Playlist.DefaultLength = v.(int) },
		extract: func(cfg Config) any { return cfg.Playlist.DefaultLength },
	},
	{
		key: "playlist.worker_poll", typ: kString, env: "MIXTAPE_WORKER_POLL",
		apply:   func(cfg *Config, v any) { cfg.Playlist.WorkerPoll = v.(string) },
		extract: func(cfg Config) any { return cfg.Playlist.WorkerPoll },
	},
	{
		key: "log.level", typ: kString, env: "MIXTAPE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
