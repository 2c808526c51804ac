package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Config struct {
	API     APIConfig
	Auth    AuthConfig
	Storage StorageConfig
	Log     LogConfig
}

type APIConfig struct {
	BaseURL  string
	Audience string
}

type AuthConfig struct {
	Token        string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/resrun/config.json and applies RESRUN_* environment
// variable overrides on top. Secrets (auth.token, auth.client_secret) are
// accepted from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.BaseURL == "" {
		return Config{}, fmt.Errorf("missing required config: api.base_url. Set it via RESRUN_API_BASE_URL or `resrun config set api.base_url <url>`")
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")

	return cfg, nil
}

const userIDKey = "user.id"

// EnsureUserID returns the persisted client user identifier, generating and
// storing a fresh one on first use. The identifier accompanies every stream
// subscription so the backend can attribute runs without a login.
func EnsureUserID() (string, error) {
	return ensureUserID(newFileBackend())
}

func ensureUserID(b ConfigBackend) (string, error) {
	id, ok, err := b.GetString(userIDKey)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", userIDKey, err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.New().String()
	if err := b.SetString(userIDKey, id); err != nil {
		return "", fmt.Errorf("persisting %s: %w", userIDKey, err)
	}
	return id, nil
}
