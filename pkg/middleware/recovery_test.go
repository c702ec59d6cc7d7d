package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/gomailer/mail-service/pkg/logger"
)

// captureLog redirects the service logger into a buffer for one test.
func captureLog(t *testing.T, format string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.Configure("debug", format)
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetOutput(os.Stdout)
		logger.Configure("info", "console")
	})
	return &buf
}

func TestRecovery(t *testing.T) {
	buf := captureLog(t, "json")

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	require.NotPanics(t, func() { r.ServeHTTP(w, req) })

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
	require.Contains(t, buf.String(), "kaboom")
	require.Contains(t, buf.String(), `"request_id":"req-1"`)
}
