package middleware

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/require"
)

func bodyRouter(limit int64) *gin.Engine {
	r := gin.New()
	r.Use(BodyParser(limit))
	r.POST("/json", func(c *gin.Context) {
		var first, second struct {
			Subject string `json:"subject"`
		}
		if err := c.ShouldBindBodyWith(&first, binding.JSON); err != nil {
			c.Status(http.StatusTeapot)
			return
		}
		_ = c.ShouldBindBodyWith(&second, binding.JSON)
		c.String(http.StatusOK, first.Subject+"|"+second.Subject)
	})
	r.POST("/plain", func(c *gin.Context) {
		var in struct {
			Subject string `json:"subject"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.Status(http.StatusTeapot)
			return
		}
		c.String(http.StatusOK, in.Subject)
	})
	r.POST("/form", func(c *gin.Context) { c.String(http.StatusOK, c.PostForm("subject")) })
	r.POST("/upload", func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.String(http.StatusOK, fh.Filename)
	})
	return r
}

func post(r http.Handler, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBodyParser_JSON(t *testing.T) {
	r := bodyRouter(1024)

	w := post(r, "/json", "application/json; charset=utf-8", `{"subject":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hi|hi", w.Body.String())

	w = post(r, "/plain", "application/merge-patch+json", `{"subject":"patched"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "patched", w.Body.String())
}

func TestBodyParser_MalformedJSON(t *testing.T) {
	w := post(bodyRouter(1024), "/json", "application/json", `{"subject":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "malformed JSON body")
}

func TestBodyParser_TooLarge(t *testing.T) {
	r := bodyRouter(16)

	w := post(r, "/json", "application/json", `{"subject":"`+strings.Repeat("x", 64)+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = post(r, "/form", binding.MIMEPOSTForm, "subject="+strings.Repeat("x", 64))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestBodyParser_Form(t *testing.T) {
	w := post(bodyRouter(1024), "/form", binding.MIMEPOSTForm, "subject=hello+world")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello world", w.Body.String())
}

func TestBodyParser_MultipartPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte("a"), 4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	// the multipart body is far above the 16 byte limit
	w := post(bodyRouter(16), "/upload", mw.FormDataContentType(), buf.String())
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "report.pdf", w.Body.String())
}

func TestBodyParser_DefaultLimit(t *testing.T) {
	w := post(bodyRouter(0), "/plain", "application/json", `{"subject":"`+strings.Repeat("x", 50<<10)+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = post(bodyRouter(0), "/plain", "application/json", `{"subject":"`+strings.Repeat("x", int(DefaultBodyLimit))+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
