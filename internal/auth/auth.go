// Package auth builds the bearer-token verifier used to protect the mail API.
package auth

import (
	"context"

	"github.com/gomailer/mail-service/internal/config"
	"github.com/gomailer/mail-service/pkg/logger"
	"github.com/gomailer/mail-service/pkg/middleware"
)

// FromConfig picks the verifier for the configured identity provider:
// Keycloak OIDC when KEYCLOAK_URL and KEYCLOAK_CLIENT_ID are set, otherwise
// HS256 when JWT_SECRET is set. It returns nil, nil when neither is set and
// the API stays unauthenticated. A failed OIDC discovery is an error rather
// than a silent downgrade.
func FromConfig(ctx context.Context, cfg *config.Config) (middleware.Verifier, error) {
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		v, err := NewOIDCVerifier(ctx, cfg.Keycloak.Issuer(), cfg.Keycloak.ClientID)
		if err != nil {
			return nil, err
		}
		logger.Infof("bearer auth: OIDC issuer %s", cfg.Keycloak.Issuer())
		return v, nil
	}
	if cfg.JWT.Secret != "" {
		v, err := NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
		if err != nil {
			return nil, err
		}
		logger.Infof("bearer auth: HS256 shared secret")
		return v, nil
	}
	logger.Warnf("bearer auth disabled: neither KEYCLOAK_URL nor JWT_SECRET is set")
	return nil, nil
}
