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
		key: "api.base_url", typ: kString, env: "RESRUN_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.audience", typ: kString, env: "RESRUN_API_AUDIENCE",
		apply:   func(cfg *Config, v any) { cfg.API.Audience = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Audience },
	},
	{
		key: "auth.token", typ: kString, env: "RESRUN_AUTH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Token },
	},
	{
		key: "auth.token_url", typ: kString, env: "RESRUN_AUTH_TOKEN_URL",
		apply:   func(cfg *Config, v any) { cfg.Auth.TokenURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.TokenURL },
	},
	{
		key: "auth.client_id", typ: kString, env: "RESRUN_AUTH_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Auth.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.ClientID },
	},
	{
		key: "auth.client_secret", typ: kString, env: "RESRUN_AUTH_CLIENT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.ClientSecret },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RESRUN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "RESRUN_LOG_LEVEL",
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
