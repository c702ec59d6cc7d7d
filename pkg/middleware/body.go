package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// DefaultBodyLimit is used when BodyParser is given a non-positive limit.
const DefaultBodyLimit int64 = 100 << 10

// BodyParser bounds and pre-reads JSON and urlencoded request bodies.
//
// JSON bodies larger than limit are rejected with 413, malformed ones with
// 400. A valid JSON body is buffered under gin.BodyBytesKey, so handlers may
// bind it more than once with ShouldBindBodyWith, and the request body is
// rewound for ShouldBindJSON. Urlencoded bodies are parsed into
// Request.PostForm. Other content types (multipart uploads in particular)
// pass through untouched and enforce their own limits.
func BodyParser(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		switch ct := c.ContentType(); {
		case isJSON(ct):
			parseJSONBody(c, limit)
		case ct == binding.MIMEPOSTForm:
			parseFormBody(c, limit)
		default:
			c.Next()
		}
	}
}

func parseJSONBody(c *gin.Context, limit int64) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		abortBody(c, err)
		return
	}
	if len(bytes.TrimSpace(raw)) > 0 && !json.Valid(raw) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}
	c.Set(gin.BodyBytesKey, raw)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	c.Next()
}

func parseFormBody(c *gin.Context, limit int64) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	if err := c.Request.ParseForm(); err != nil {
		abortBody(c, err)
		return
	}
	c.Next()
}

func abortBody(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
}

func isJSON(ct string) bool {
	return ct == binding.MIMEJSON || strings.HasSuffix(ct, "+json")
}
