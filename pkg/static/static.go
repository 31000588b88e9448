// Package static serves fixed assets with strong ETags and handles
// conditional requests.
package static

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// ETag returns the strong quoted hex SHA-256 of the bytes.
func ETag(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// MatchesIfNoneMatch reports whether an If-None-Match header value matches
// the server's ETag. A weak validator (W/"...") matches its strong form, and
// "*" matches anything.
func MatchesIfNoneMatch(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

// NormalizePath validates a client-supplied asset path. Empty segments,
// dot segments and backslashes are rejected outright.
func NormalizePath(p string) (string, error) {
	if p == "" || strings.Contains(p, "\\") {
		return "", errors.Errorf("invalid static path %q", p)
	}
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", errors.Errorf("invalid static path %q", p)
		}
	}
	return path.Join(segments...), nil
}

// Handler serves assets out of fsys under a single route parameter named "*".
func Handler(fsys fs.FS) echo.HandlerFunc {
	return func(c echo.Context) error {
		rel, err := NormalizePath(c.Param("*"))
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		data, err := fs.ReadFile(fsys, rel)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return Serve(c, data, mimeByExtension(rel))
	}
}

// Serve writes the bytes with cache headers, answering a matching
// If-None-Match with 304 and no body.
func Serve(c echo.Context, data []byte, contentType string) error {
	etag := ETag(data)
	c.Response().Header().Set("ETag", etag)
	c.Response().Header().Set("Cache-Control", "public, max-age=3600")

	if inm := c.Request().Header.Get("If-None-Match"); inm != "" && MatchesIfNoneMatch(inm, etag) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func mimeByExtension(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".ico":
		return "image/x-icon"
	case ".woff2":
		return "font/woff2"
	default:
		return "application/octet-stream"
	}
}
