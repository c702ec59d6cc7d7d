package middleware

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// Compress gzips responses for clients that accept it. It wraps the whole
// http.Handler rather than sitting in the gin chain so that every response,
// including gin's own 404s, goes through it. Bodies under gzhttp's minimum
// size are sent as is.
func Compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
