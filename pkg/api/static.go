package api

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// cacheControlWriter sets Cache-Control based on the request path before the
// first write.
type cacheControlWriter struct {
	http.ResponseWriter
	path        string
	wroteHeader bool
}

func (w *cacheControlWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.Header().Set("Cache-Control", cacheControlFor(w.path))
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func cacheControlFor(path string) string {
	switch {
	case strings.HasPrefix(path, "/lib/"):
		// vendored client libraries are versioned by directory
		return "public, max-age=31536000, immutable"
	case strings.HasSuffix(path, ".html") || strings.HasSuffix(path, "/"):
		return "no-cache, must-revalidate"
	default:
		return "public, max-age=3600, must-revalidate"
	}
}

// ServeStatic serves files from dir for GET and HEAD requests. Requests for
// files that do not exist fall through to the router.
func ServeStatic(urlPrefix, dir string) gin.HandlerFunc {
	if dir == "" {
		return func(c *gin.Context) { c.Next() }
	}
	directory := static.LocalFile(dir, false)
	fileserver := http.FileServer(directory)
	if urlPrefix != "" && urlPrefix != "/" {
		fileserver = http.StripPrefix(urlPrefix, fileserver)
	}
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			return
		}
		path := c.Request.URL.Path
		if path == "/" || !directory.Exists(urlPrefix, path) {
			c.Next()
			return
		}
		fileserver.ServeHTTP(&cacheControlWriter{ResponseWriter: c.Writer, path: path}, c.Request)
		c.Abort()
	}
}
