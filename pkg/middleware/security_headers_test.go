package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders_Defaults(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(SecurityHeadersConfig{}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	h := w.Header()
	require.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	require.Equal(t, "SAMEORIGIN", h.Get("X-Frame-Options"))
	require.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	require.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	require.Equal(t, "0", h.Get("X-XSS-Protection"))
	require.Equal(t, "off", h.Get("X-DNS-Prefetch-Control"))
	require.Equal(t, "same-origin", h.Get("Cross-Origin-Opener-Policy"))
	require.Contains(t, h.Get("Content-Security-Policy"), "default-src 'self'")
	require.Empty(t, h.Get("X-Powered-By"))
}

func TestSecurityHeaders_OverridesAndHandlerWins(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(SecurityHeadersConfig{FrameOptions: "DENY", HSTSMaxAge: -1}))
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Security-Policy", "default-src *")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))

	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Empty(t, w.Header().Get("Strict-Transport-Security"))
	require.Equal(t, "default-src *", w.Header().Get("Content-Security-Policy"))
}
