package auth

import (
	"github.com/kalambet/resrun/internal/config"
)

// FromConfig selects a TokenProvider: an explicit token wins, then a
// client-credentials token endpoint, else anonymous.
func FromConfig(cfg config.AuthConfig) TokenProvider {
	switch {
	case cfg.Token != "":
		return Static{Value: cfg.Token}
	case cfg.TokenURL != "":
		return &ClientCredentials{
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
		}
	default:
		return Anonymous{}
	}
}
