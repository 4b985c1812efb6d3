// Package markup converts between the markdown source of a comment and
// its sanitized display form.
package markup

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// MediaType is the media type of the source carried alongside rendered content.
const MediaType = "text/markdown"

var (
	md     = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy = bluemonday.UGCPolicy()
)

// RenderComment renders markdown source to sanitized HTML.
// If the source cannot be rendered it is returned escaped.
func RenderComment(source string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return policy.Sanitize(source)
	}
	return strings.TrimSpace(policy.Sanitize(buf.String()))
}

// ExtractSource recovers the authoring text of an inbound object. A markdown
// source, when present, wins over the rendered content.
func ExtractSource(content, mediaType, source string) string {
	if source != "" && (mediaType == "" || mediaType == MediaType) {
		return source
	}
	return content
}
