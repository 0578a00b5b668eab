package files

import "strings"

var thumbnailPrefixes = []string{"image/", "video/"}

var thumbnailTypes = map[string]bool{
	"application/pdf":               true,
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
	"application/rtf":               true,
	"text/plain":                    true,
	"text/csv":                      true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.oasis.opendocument.spreadsheet":                            true,
	"application/vnd.oasis.opendocument.presentation":                           true,
}

// Thumbnailable reports whether mimeType can be previewed inline.
func Thumbnailable(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	for _, p := range thumbnailPrefixes {
		if strings.HasPrefix(mimeType, p) {
			return true
		}
	}
	return thumbnailTypes[mimeType]
}
