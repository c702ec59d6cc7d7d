package middleware

import (
	"github.com/gin-gonic/gin"
)

// CookiesKey is the gin context key holding the parsed request cookies.
const CookiesKey = "cookies"

// CookieParser parses the Cookie header once per request into a name→value
// map. When a name repeats the first occurrence wins, as browsers send the
// most specific cookie first.
func CookieParser() gin.HandlerFunc {
	return func(c *gin.Context) {
		parsed := make(map[string]string)
		for _, ck := range c.Request.Cookies() {
			if _, seen := parsed[ck.Name]; !seen {
				parsed[ck.Name] = ck.Value
			}
		}
		c.Set(CookiesKey, parsed)
		c.Next()
	}
}

// Cookies returns the cookies parsed by CookieParser, never nil.
func Cookies(c *gin.Context) map[string]string {
	if v, ok := c.Get(CookiesKey); ok {
		if m, ok := v.(map[string]string); ok {
			return m
		}
	}
	return map[string]string{}
}
