package blob

import (
	"mime"
	"path/filepath"
	"strings"
)

// Extensions whose platform MIME registrations are missing or unhelpful.
// These take precedence over the mime package.
var contentTypeOverrides = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".csv":      "text/csv",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// DefaultContentType is used when no type can be inferred from the extension.
const DefaultContentType = "application/octet-stream"

// InferContentType returns the MIME type for a URI based on its extension.
// Parameters such as charset are stripped. Unknown extensions map to
// DefaultContentType.
func InferContentType(uri string) string {
	ext := strings.ToLower(filepath.Ext(uri))
	if ct, ok := contentTypeOverrides[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
		return ct
	}
	return DefaultContentType
}
