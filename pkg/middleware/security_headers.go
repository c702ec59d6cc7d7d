package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds the values of the security response headers.
// Zero values fall back to DefaultSecurityHeaders.
type SecurityHeadersConfig struct {
	ContentSecurityPolicy     string
	CrossOriginOpenerPolicy   string
	CrossOriginResourcePolicy string
	ReferrerPolicy            string
	FrameOptions              string
	HSTSMaxAge                int
}

// DefaultSecurityHeaders mirrors the defaults of the helmet family of
// middlewares.
func DefaultSecurityHeaders() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		ContentSecurityPolicy: "default-src 'self';base-uri 'self';font-src 'self' https: data:;" +
			"form-action 'self';frame-ancestors 'self';img-src 'self' data:;object-src 'none';" +
			"script-src 'self';script-src-attr 'none';style-src 'self' https: 'unsafe-inline';" +
			"upgrade-insecure-requests",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
		ReferrerPolicy:            "no-referrer",
		FrameOptions:              "SAMEORIGIN",
		HSTSMaxAge:                31536000,
	}
}

// SecurityHeaders sets the security headers before the handler runs, so a
// handler may still override one (the Swagger page relaxes the CSP).
func SecurityHeaders(cfg SecurityHeadersConfig) gin.HandlerFunc {
	def := DefaultSecurityHeaders()
	if cfg.ContentSecurityPolicy == "" {
		cfg.ContentSecurityPolicy = def.ContentSecurityPolicy
	}
	if cfg.CrossOriginOpenerPolicy == "" {
		cfg.CrossOriginOpenerPolicy = def.CrossOriginOpenerPolicy
	}
	if cfg.CrossOriginResourcePolicy == "" {
		cfg.CrossOriginResourcePolicy = def.CrossOriginResourcePolicy
	}
	if cfg.ReferrerPolicy == "" {
		cfg.ReferrerPolicy = def.ReferrerPolicy
	}
	if cfg.FrameOptions == "" {
		cfg.FrameOptions = def.FrameOptions
	}
	if cfg.HSTSMaxAge == 0 {
		cfg.HSTSMaxAge = def.HSTSMaxAge
	}
	headers := map[string]string{
		"Content-Security-Policy":           cfg.ContentSecurityPolicy,
		"Cross-Origin-Opener-Policy":        cfg.CrossOriginOpenerPolicy,
		"Cross-Origin-Resource-Policy":      cfg.CrossOriginResourcePolicy,
		"Origin-Agent-Cluster":              "?1",
		"Referrer-Policy":                   cfg.ReferrerPolicy,
		"X-Content-Type-Options":            "nosniff",
		"X-DNS-Prefetch-Control":            "off",
		"X-Download-Options":                "noopen",
		"X-Frame-Options":                   cfg.FrameOptions,
		"X-Permitted-Cross-Domain-Policies": "none",
		"X-XSS-Protection":                  "0",
	}
	if cfg.HSTSMaxAge > 0 {
		headers["Strict-Transport-Security"] = "max-age=" + strconv.Itoa(cfg.HSTSMaxAge) + "; includeSubDomains"
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range headers {
			h.Set(k, v)
		}
		h.Del("X-Powered-By")
		c.Next()
	}
}
