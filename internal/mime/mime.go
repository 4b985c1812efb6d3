// Package mime contains helper functions for inspecting the Content-Type header.
package mime

import (
	"net/http"
	"strings"
)

// MediaType returns the media type of the request.
func MediaType(req *http.Request) string {
	typ := strings.TrimSpace(strings.Split(req.Header.Get("Content-Type"), ";")[0])
	if typ == "" {
		typ = "application/octet-stream"
	}
	return strings.ToLower(typ)
}

// IsActivity reports whether the request carries an ActivityStreams document.
func IsActivity(req *http.Request) bool {
	switch MediaType(req) {
	case "application/activity+json", "application/ld+json", "application/json":
		return true
	default:
		return false
	}
}
