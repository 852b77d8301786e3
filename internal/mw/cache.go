package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// cacheEntry is a replayable snapshot of a successful response.
type cacheEntry struct {
	status int
	header http.Header
	body   []byte
}

// captureWriter tees the response body so it can be stored once the
// handler finishes.
type captureWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves GET responses from memory for the given duration. The region
// list and day stats change far less often than clients poll them; every
// other method passes through untouched.
func Cache(store *cache.Cache, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if hit, found := store.Get(key); found {
			entry := hit.(cacheEntry)
			for k, v := range entry.header {
				c.Writer.Header()[k] = v
			}
			c.Writer.WriteHeader(entry.status)
			c.Writer.Write(entry.body)
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer, buf: bytes.NewBuffer(nil)}
		c.Writer = w

		c.Next()

		// Errors stay uncached so a retry reaches the handler again.
		if status := w.Status(); status >= 200 && status < 300 {
			store.Set(key, cacheEntry{
				status: status,
				header: w.Header().Clone(),
				body:   w.buf.Bytes(),
			}, duration)
		}
	}
}
