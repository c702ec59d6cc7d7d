package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestFormatters(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/mail?page=2", nil)
	req.Header.Set("Referer", "https://app.example.com/")
	req.Header.Set("User-Agent", "curl/8.0")
	p := gin.LogFormatterParams{
		Request:    req,
		TimeStamp:  time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("", 3600)),
		StatusCode: 200,
		Latency:    1500 * time.Microsecond,
		ClientIP:   "10.0.0.1",
		Method:     http.MethodGet,
		Path:       "/v1/mail?page=2",
		BodySize:   42,
	}

	cases := map[string]string{
		LogFormatDev:      `GET /v1/mail?page=2 200 1.500 ms - 42`,
		LogFormatTiny:     `GET /v1/mail?page=2 200 42 - 1.500 ms`,
		LogFormatShort:    `10.0.0.1 - GET /v1/mail?page=2 HTTP/1.1 200 42 - 1.500 ms`,
		LogFormatCommon:   `10.0.0.1 - - [09/Mar/2024:14:05:07 +0100] "GET /v1/mail?page=2 HTTP/1.1" 200 42`,
		LogFormatCombined: `10.0.0.1 - - [09/Mar/2024:14:05:07 +0100] "GET /v1/mail?page=2 HTTP/1.1" 200 42 "https://app.example.com/" "curl/8.0"`,
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, want, formatters[name](p))
		})
	}

	p.BodySize = -1
	require.True(t, strings.HasSuffix(formatters[LogFormatDev](p), "- -"))
}

func TestRequestLogger_Text(t *testing.T) {
	buf := captureLog(t, "json")

	r := gin.New()
	r.Use(RequestLogger("TINY"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.True(t, strings.HasPrefix(entry["message"].(string), "GET /ping 200 4 - "), entry["message"])
}

func TestRequestLogger_UnknownFormatFallsBackToDev(t *testing.T) {
	buf := captureLog(t, "json")

	r := gin.New()
	r.Use(RequestLogger("fancy"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.True(t, strings.HasPrefix(entry["message"].(string), "GET /ping 200 "), entry["message"])
	require.True(t, strings.HasSuffix(entry["message"].(string), " ms - 4"), entry["message"])
}

func TestRequestLogger_JSON(t *testing.T) {
	buf := captureLog(t, "json")

	r := gin.New()
	r.Use(RequestID(), RequestLogger(LogFormatJSON))
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	req := httptest.NewRequest(http.MethodGet, "/fail?x=1", nil)
	req.Header.Set(RequestIDHeader, "rid-7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "error", entry["level"])
	require.Equal(t, "GET", entry["method"])
	require.Equal(t, "/fail?x=1", entry["path"])
	require.EqualValues(t, 503, entry["status"])
	require.Equal(t, "rid-7", entry["request_id"])
	require.Equal(t, "HTTP request", entry["message"])
}
