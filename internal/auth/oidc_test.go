package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testKID = "test-key"

// fakeProvider serves OIDC discovery and a JWKS holding one RSA key.
type fakeProvider struct {
	*httptest.Server
	key *rsa.PrivateKey
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := &fakeProvider{key: key}

	r := gin.New()
	r.GET("/.well-known/openid-configuration", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"issuer":                                p.URL,
			"authorization_endpoint":                p.URL + "/auth",
			"token_endpoint":                        p.URL + "/token",
			"jwks_uri":                              p.URL + "/certs",
			"userinfo_endpoint":                     p.URL + "/userinfo",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	r.GET("/certs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"keys": []gin.H{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": testKID,
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	})
	p.Server = httptest.NewServer(r)
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKID
	raw, err := tok.SignedString(p.key)
	require.NoError(t, err)
	return raw
}

func TestOIDCVerifier(t *testing.T) {
	p := newFakeProvider(t)
	ctx := context.Background()

	v, err := NewOIDCVerifier(ctx, p.URL, "mail-api")
	require.NoError(t, err)

	good := p.sign(t, jwt.MapClaims{
		"iss": p.URL, "aud": "mail-api", "sub": "kc-user",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Minute).Unix(),
	})
	tok, err := v.Verify(ctx, good)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "kc-user", claims["sub"])

	wrongAudience := p.sign(t, jwt.MapClaims{
		"iss": p.URL, "aud": "other", "sub": "kc-user",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Minute).Unix(),
	})
	_, err = v.Verify(ctx, wrongAudience)
	require.Error(t, err)

	expired := p.sign(t, jwt.MapClaims{
		"iss": p.URL, "aud": "mail-api", "sub": "kc-user",
		"iat": time.Now().Add(-time.Hour).Unix(), "exp": time.Now().Add(-time.Minute).Unix(),
	})
	_, err = v.Verify(ctx, expired)
	require.Error(t, err)
}

func TestOIDCVerifier_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewOIDCVerifier(context.Background(), srv.URL, "mail-api")
	require.ErrorContains(t, err, "failed to discover OIDC provider")
}
