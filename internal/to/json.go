// Package to contains functions for writing responses.
package to

import (
	"net/http"

	"github.com/go-json-experiment/json"
)

// ActivityContentType is the media type used for federated documents.
const ActivityContentType = "application/activity+json"

// JSON writes the given object to the response body as JSON.
// If obj is a nil slice, an empty JSON array is written.
// If obj is a nil map, an empty JSON object is written.
// If obj is a nil pointer, a null is written.
func JSON(w http.ResponseWriter, obj any) error {
	return write(w, "application/json; charset=utf-8", http.StatusOK, obj)
}

// Activity writes obj as an ActivityStreams document.
func Activity(w http.ResponseWriter, obj any) error {
	return write(w, ActivityContentType, http.StatusOK, obj)
}

// Status writes obj as JSON with the given status code.
func Status(w http.ResponseWriter, code int, obj any) error {
	return write(w, "application/json; charset=utf-8", code, obj)
}

func write(w http.ResponseWriter, contentType string, code int, obj any) error {
	w.Header().Set("Content-Type", contentType)
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{
		Indent: "  ",
	}, w, obj)
}
